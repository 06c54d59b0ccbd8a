package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tonimelisma/kakao-go/internal/apierr"
	"github.com/tonimelisma/kakao-go/internal/charset"
	"github.com/tonimelisma/kakao-go/internal/multipart"
)

const formContentType = "application/x-www-form-urlencoded"

// Request describes one API call. Params and Parts are mutually exclusive.
// For GET and DELETE, Params are appended to the URL query instead of the body.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Params  url.Values
	Parts   []multipart.Part
	Charset string
}

// Response carries the status and the fully read body. For status >= 400
// Body is the error body, possibly empty.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is below 400.
func (r *Response) OK() bool {
	return r.StatusCode < http.StatusBadRequest
}

// Call is a single request/response cycle. It cannot be executed twice.
type Call struct {
	client *Client
	req    *Request
	used   atomic.Bool
}

// Execute sends the request and reads the whole response. Every error is
// an *apierr.Error: parameter errors for unencodable input, transport
// errors for everything that prevented a response from being read.
func (c *Call) Execute(ctx context.Context) (*Response, error) {
	if !c.used.CompareAndSwap(false, true) {
		return nil, apierr.Transport(ErrCallReused)
	}

	req := c.req
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := c.client.tracer.Start(ctx, "transport "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", redactQuery(req.URL)),
		),
	)
	defer span.End()

	resp, err := c.execute(ctx, method)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if !resp.OK() {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	return resp, nil
}

func (c *Call) execute(ctx context.Context, method string) (*Response, error) {
	req := c.req
	cs := req.Charset
	if cs == "" {
		cs = c.client.charset
	}

	if len(req.Params) > 0 && len(req.Parts) > 0 {
		return nil, apierr.Parameter("transport: request has both form params and multipart parts")
	}

	target := req.URL
	hasBody := method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch

	if !hasBody && len(req.Parts) > 0 {
		return nil, apierr.Parameter("transport: %s request cannot carry multipart parts", method)
	}

	var (
		body          io.Reader
		contentLength int64
		contentType   string
	)

	switch {
	case !hasBody && len(req.Params) > 0:
		q, err := EncodeForm(req.Params, cs)
		if err != nil {
			return nil, apierr.Parameter("transport: encoding query: %v", err)
		}

		target = appendQuery(target, string(q))
	case hasBody && len(req.Params) > 0:
		form, err := EncodeForm(req.Params, cs)
		if err != nil {
			return nil, apierr.Parameter("transport: encoding form: %v", err)
		}

		body = bytes.NewReader(form)
		contentLength = int64(len(form))
		contentType = formContentType
	case hasBody && len(req.Parts) > 0:
		enc, err := multipart.NewEncoder(req.Parts...)
		if err != nil {
			return nil, apierr.Parameter("transport: %v", err)
		}

		r := enc.Reader()
		defer r.Close()

		body = r
		contentLength = enc.Len()
		contentType = enc.ContentType()
	case hasBody:
		body = http.NoBody
	}

	// Body reads get their own read deadline once headers have arrived.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apierr.Transport(fmt.Errorf("transport: building request: %w", err))
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpReq.Header.Set("Connection", "keep-alive")

	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.client.userAgent)
	}

	if hasBody {
		httpReq.ContentLength = contentLength
		httpReq.Header.Set("Content-Length", strconv.FormatInt(contentLength, 10))

		// Multipart bodies always carry their own boundary.
		if contentType != "" && (httpReq.Header.Get("Content-Type") == "" || len(req.Parts) > 0) {
			httpReq.Header.Set("Content-Type", contentType)
		}
	}

	start := time.Now()

	resp, err := c.client.httpClient.Do(httpReq)
	if err != nil {
		c.client.logger.Debug("request failed",
			slog.String("method", method),
			slog.String("url", redactQuery(req.URL)),
			slog.String("error", err.Error()),
		)

		return nil, apierr.Transport(fmt.Errorf("transport: %s %s: %w", method, redactQuery(req.URL), err))
	}
	defer resp.Body.Close()

	timer := time.AfterFunc(c.client.readTimeout, cancel)
	defer timer.Stop()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Transport(fmt.Errorf("transport: reading response body: %w", err))
	}

	c.client.logger.Debug("request completed",
		slog.String("method", method),
		slog.String("url", redactQuery(req.URL)),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// EncodeForm renders params as an application/x-www-form-urlencoded body.
// Keys are emitted in sorted order; keys and values are converted to cs
// before percent-encoding.
func EncodeForm(params url.Values, cs string) ([]byte, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	var buf bytes.Buffer

	for _, k := range keys {
		ek, err := charset.Encode(k, cs)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}

		for _, v := range params[k] {
			ev, err := charset.Encode(v, cs)
			if err != nil {
				return nil, fmt.Errorf("value of %q: %w", k, err)
			}

			if buf.Len() > 0 {
				buf.WriteByte('&')
			}

			buf.WriteString(url.QueryEscape(string(ek)))
			buf.WriteByte('=')
			buf.WriteString(url.QueryEscape(string(ev)))
		}
	}

	return buf.Bytes(), nil
}

func appendQuery(rawURL, query string) string {
	if query == "" {
		return rawURL
	}

	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + query
	}

	return rawURL + "?" + query
}

// redactQuery strips the query string so parameters never reach logs or spans.
func redactQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}

	return rawURL
}
