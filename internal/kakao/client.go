// Package kakao is the request pipeline and the service surface built on
// it: every API call goes through Client.Do, which attaches the session's
// bearer token and refreshes it once when the server rejects it.
package kakao

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tonimelisma/kakao-go/internal/apierr"
	"github.com/tonimelisma/kakao-go/internal/session"
	"github.com/tonimelisma/kakao-go/internal/transport"
)

// Default hosts.
const (
	DefaultAPIHost  = "https://kapi.kakao.com"
	DefaultAuthHost = "https://kauth.kakao.com"
)

// Client sends authenticated requests to the API host.
type Client struct {
	transport *transport.Client
	session   *session.Session
	apiHost   string
	charset   string
	logger    *slog.Logger
}

// NewClient creates a Client. charset is the declared charset for form
// and multipart bodies; empty means the transport default.
func NewClient(tc *transport.Client, s *session.Session, apiHost, charset string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if apiHost == "" {
		apiHost = DefaultAPIHost
	}

	return &Client{
		transport: tc,
		session:   s,
		apiHost:   strings.TrimRight(apiHost, "/"),
		charset:   charset,
		logger:    logger,
	}
}

// Session returns the session whose token the client uses.
func (c *Client) Session() *session.Session { return c.session }

// URL joins path onto the API host.
func (c *Client) URL(path string) string {
	return c.apiHost + path
}

// Do executes req with the current access token. An authorization failure
// triggers one refresh (shared with any concurrent caller) and one retry;
// a second authorization failure drops the access token and reports the
// session as closed. Non-2xx responses come back as *apierr.Error.
func (c *Client) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	tok, err := c.session.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, tok.AccessToken)
	if err == nil || !apierr.IsAuthorization(err) {
		return resp, err
	}

	c.logger.Info("access token rejected, refreshing",
		slog.String("method", req.Method),
		slog.String("url", stripQuery(req.URL)),
	)

	fresh, err := c.session.RefreshIfStale(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, req, fresh.AccessToken)
	if err == nil || !apierr.IsAuthorization(err) {
		return resp, err
	}

	if invErr := c.session.InvalidateAccessToken(ctx); invErr != nil {
		c.logger.Warn("dropping rejected access token", slog.String("error", invErr.Error()))
	}

	return nil, apierr.SessionClosed("kakao: access token rejected after refresh", err)
}

// send runs one attempt with the given bearer token. req is copied so a
// retry starts from the caller's original request.
func (c *Client) send(ctx context.Context, req *transport.Request, accessToken string) (*transport.Response, error) {
	attempt := *req

	attempt.Header = req.Header.Clone()
	if attempt.Header == nil {
		attempt.Header = make(http.Header)
	}

	attempt.Header.Set("Authorization", "Bearer "+accessToken)

	if attempt.Charset == "" {
		attempt.Charset = c.charset
	}

	resp, err := c.transport.NewCall(&attempt).Execute(ctx)
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		return nil, decodeError(resp)
	}

	c.logger.Debug("request succeeded",
		slog.String("method", attempt.Method),
		slog.String("url", stripQuery(attempt.URL)),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}

// errorBody is the platform's error payload.
type errorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// decodeError classifies a non-2xx response. A body that is not the
// {"code","msg"} shape still yields an error keyed on the status.
func decodeError(resp *transport.Response) *apierr.Error {
	var body errorBody
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			body = errorBody{Msg: strings.TrimSpace(string(resp.Body))}
		}
	}

	return apierr.FromResponse(resp.StatusCode, body.Code, body.Msg)
}

// DoJSON executes req through c and decodes the JSON response into T.
func DoJSON[T any](ctx context.Context, c *Client, req *transport.Request) (T, error) {
	var out T

	resp, err := c.Do(ctx, req)
	if err != nil {
		return out, err
	}

	if len(resp.Body) == 0 {
		return out, nil
	}

	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, apierr.Transport(fmt.Errorf("kakao: decoding %s response: %w", stripQuery(req.URL), err))
	}

	return out, nil
}

func stripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}

	return rawURL
}
