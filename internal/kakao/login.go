package kakao

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/tonimelisma/kakao-go/internal/token"
)

const (
	stateTokenBytes = 16
	shutdownTimeout = 5 * time.Second
)

type callbackResult struct {
	code string
	err  error
}

// LoginWithBrowser runs the authorization-code flow through a local
// callback server. The redirect URL must point at a loopback address,
// and it must be registered for the app exactly as configured.
// openURL is handed the authorization URL; when it fails, the URL is
// passed to display instead so the user can open it by hand.
func (o *OAuth) LoginWithBrowser(
	ctx context.Context,
	openURL func(string) error,
	display func(string),
) (*token.AccessToken, error) {
	redirect, err := url.Parse(o.cfg.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("kakao: redirect URL %q is not an absolute URL", o.cfg.RedirectURL)
	}

	if !isLoopback(redirect.Hostname()) {
		return nil, fmt.Errorf("kakao: redirect URL host %q is not a loopback address; use --code instead", redirect.Hostname())
	}

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("kakao: generating state token: %w", err)
	}

	resultCh := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		handleCallback(w, r, state, resultCh)
	})

	srv, err := o.startCallbackServer(ctx, redirect.Host, mux, resultCh)
	if err != nil {
		return nil, err
	}

	defer o.shutdownCallbackServer(srv)

	authURL := o.AuthCodeURL(state)

	o.logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		o.logger.Warn("failed to open browser, printing URL", slog.String("error", openErr.Error()))
		display(authURL)
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}

		return o.Exchange(ctx, res.code)
	case <-ctx.Done():
		return nil, fmt.Errorf("kakao: browser login canceled: %w", ctx.Err())
	}
}

func (o *OAuth) startCallbackServer(
	ctx context.Context,
	addr string,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
) (*http.Server, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("kakao: binding callback listener: %w", err)
	}

	o.logger.Info("callback server listening", slog.String("addr", listener.Addr().String()))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("kakao: callback server: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, nil
}

func (o *OAuth) shutdownCallbackServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		o.logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// handleCallback checks state, then reports the code or the auth host's error.
func handleCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	q := r.URL.Query()

	var res callbackResult

	switch {
	case q.Get("state") != state:
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		res.err = errors.New("kakao: OAuth2 state mismatch (possible CSRF)")
	case q.Get("error") != "":
		http.Error(w, "Authorization failed: "+q.Get("error"), http.StatusBadRequest)
		res.err = fmt.Errorf("kakao: authorization failed: %s: %s", q.Get("error"), q.Get("error_description"))
	case q.Get("code") == "":
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		res.err = errors.New("kakao: callback missing authorization code")
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
			"<p>You can close this window and return to the terminal.</p></body></html>")

		res.code = q.Get("code")
	}

	select {
	case resultCh <- res:
	default:
	}
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}
