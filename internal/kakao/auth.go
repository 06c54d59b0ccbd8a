package kakao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/kakao-go/internal/apierr"
	"github.com/tonimelisma/kakao-go/internal/token"
)

// OAuth endpoint paths on the auth host.
const (
	authorizePath = "/oauth/authorize"
	tokenPath     = "/oauth/token"
)

// OAuthOptions configures the authorization-code and refresh-token grants.
type OAuthOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthHost     string
	Scopes       []string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// OAuth talks to the auth host. It implements session.Refresher.
type OAuth struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
	nowFunc    func() time.Time
}

func NewOAuth(opts OAuthOptions) *OAuth {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	host := strings.TrimRight(opts.AuthHost, "/")
	if host == "" {
		host = DefaultAuthHost
	}

	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   host + authorizePath,
				TokenURL:  host + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: opts.HTTPClient,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// RedirectURL is the registered redirect URI the auth host sends the code to.
func (o *OAuth) RedirectURL() string { return o.cfg.RedirectURL }

// AuthCodeURL returns the URL the user visits to grant access.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (o *OAuth) Exchange(ctx context.Context, code string) (*token.AccessToken, error) {
	if code == "" {
		return nil, apierr.Parameter("kakao: authorization code is empty")
	}

	o.logger.Info("exchanging authorization code for token")

	tok, err := o.cfg.Exchange(o.withClient(ctx), code)
	if err != nil {
		return nil, classifyOAuthError("code exchange", err)
	}

	out, err := o.convert(tok, tok.RefreshToken)
	if err != nil {
		return nil, err
	}

	o.logger.Info("token exchange successful", slog.Time("expiry", out.AccessTokenExpiresAt))

	return out, nil
}

// Refresh runs the refresh-token grant. The returned token carries a
// refresh half only when the server rotated the refresh token.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*token.AccessToken, error) {
	if refreshToken == "" {
		return nil, apierr.SessionClosed("kakao: no refresh token", nil)
	}

	src := o.cfg.TokenSource(o.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		return nil, classifyOAuthError("token refresh", err)
	}

	// oauth2 copies the old refresh token into the result when the server
	// omits one; only the raw response tells whether it rotated.
	rotated := ""
	if v, ok := tok.Extra("refresh_token").(string); ok {
		rotated = v
	}

	o.logger.Debug("token refreshed", slog.Bool("refresh_token_rotated", rotated != ""))

	return o.convert(tok, rotated)
}

func (o *OAuth) withClient(ctx context.Context) context.Context {
	if o.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

func (o *OAuth) convert(tok *oauth2.Token, refreshToken string) (*token.AccessToken, error) {
	now := o.nowFunc()

	resp := token.AuthResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: refreshToken,
		ExpiresIn:    extraSeconds(tok, "expires_in"),
	}

	if resp.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		resp.ExpiresIn = int64(tok.Expiry.Sub(now) / time.Second)
	}

	if refreshToken != "" {
		resp.RefreshTokenExpiresIn = extraSeconds(tok, "refresh_token_expires_in")
	}

	out, err := token.FromResponse(resp, now)
	if err != nil {
		return nil, apierr.Transport(fmt.Errorf("kakao: %w", err))
	}

	return out, nil
}

// extraSeconds reads a numeric field from the raw token response.
func extraSeconds(tok *oauth2.Token, key string) int64 {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// classifyOAuthError maps a rejected grant to an authorization error so
// the session tears itself down; anything else is a transport failure.
func classifyOAuthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		status := re.Response.StatusCode
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}

		if msg == "" {
			msg = strings.TrimSpace(string(re.Body))
		}

		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return &apierr.Error{
				Kind:       apierr.KindAuthorization,
				Code:       int(apierr.CodeUnauthorized),
				Message:    fmt.Sprintf("%s rejected: %s", op, msg),
				HTTPStatus: status,
				Err:        err,
			}
		}

		return apierr.FromResponse(status, 0, fmt.Sprintf("%s failed: %s", op, msg))
	}

	return apierr.Transport(fmt.Errorf("kakao: %s: %w", op, err))
}
