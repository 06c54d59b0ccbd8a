// Package session owns the current token pair: validity checks,
// persistence, and the single-flight refresh every API call goes through.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/kakao-go/internal/apierr"
	"github.com/tonimelisma/kakao-go/internal/token"
)

// State is the session lifecycle state.
type State int

const (
	StateNoSession State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const refreshKey = "refresh"

// Refresher trades a refresh token for a new token. A rejected refresh
// token must be reported as an authorization or session-closed
// *apierr.Error so the session can be torn down; any other error leaves
// the session untouched.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*token.AccessToken, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (*token.AccessToken, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*token.AccessToken, error) {
	return f(ctx, refreshToken)
}

// Session holds exactly one token. All reads return copies; all writes
// happen under mu and are mirrored to the cache.
type Session struct {
	mu        sync.RWMutex
	tok       *token.AccessToken
	state     State
	cache     token.Cache
	refresher Refresher
	logger    *slog.Logger
	flight    singleflight.Group

	// rejected is an access token the server refused. It stays unusable
	// even before its expiry, so a refresh flight started by a caller that
	// never saw the rejection still refreshes.
	rejected string

	// nowFunc returns the current time. Tests override it.
	nowFunc func() time.Time
}

// New returns a session with an empty token in StateNoSession. Call
// Restore to pick up a persisted token.
func New(cache token.Cache, refresher Refresher, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		tok:       token.Empty(),
		state:     StateNoSession,
		cache:     cache,
		refresher: refresher,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// CurrentToken returns a copy of the current token.
func (s *Session) CurrentToken() *token.AccessToken {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tok.Clone()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Restore replaces the in-memory token with the persisted one.
func (s *Session) Restore(ctx context.Context) error {
	tok, err := token.Load(ctx, s.cache)
	if err != nil {
		return fmt.Errorf("session: restoring token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The flight owns the token until it finishes; the file it is about
	// to write would be read back here anyway.
	if s.state == StateOpening {
		s.logger.Debug("skipping restore during token refresh")

		return nil
	}

	s.tok = tok
	s.state = s.restingState()

	s.logger.Debug("session restored",
		slog.String("state", s.state.String()),
		slog.Bool("access_valid", tok.ValidAt(s.nowFunc())),
		slog.Bool("has_refresh", tok.HasRefreshToken()),
	)

	return nil
}

// Persist writes the current token to the cache.
func (s *Session) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tok.Save(ctx, s.cache)
}

// Open installs a freshly issued token (login) and persists it.
func (s *Session) Open(ctx context.Context, tok *token.AccessToken) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("session: cannot open with an empty token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tok = tok.Clone()
	s.state = StateOpen
	s.rejected = ""

	if err := s.tok.Save(ctx, s.cache); err != nil {
		return fmt.Errorf("session: persisting new token: %w", err)
	}

	s.logger.Info("session opened", slog.Time("access_expires_at", s.tok.AccessTokenExpiresAt))

	return nil
}

// EnsureValid returns a token whose access half is valid now, refreshing
// first if needed. Concurrent callers share one refresh. Fails with a
// session-closed error when no usable refresh token exists.
func (s *Session) EnsureValid(ctx context.Context) (*token.AccessToken, error) {
	s.mu.RLock()
	if s.usableLocked(s.nowFunc()) {
		tok := s.tok.Clone()
		s.mu.RUnlock()

		return tok, nil
	}
	s.mu.RUnlock()

	return s.refresh(ctx, "")
}

// RefreshIfStale forces a refresh unless the current access token already
// differs from stale, i.e. another caller refreshed it since stale was
// read. Used after the server rejected stale.
func (s *Session) RefreshIfStale(ctx context.Context, stale string) (*token.AccessToken, error) {
	if stale == "" {
		return s.refresh(ctx, stale)
	}

	s.mu.Lock()
	if s.tok.AccessToken == stale {
		s.rejected = stale
	}
	s.mu.Unlock()

	tok, err := s.refresh(ctx, stale)
	if err != nil || tok.AccessToken != stale {
		return tok, err
	}

	// Joined a flight that had already handed out stale before it was
	// marked rejected. Any flight started now refreshes.
	return s.refresh(ctx, stale)
}

// InvalidateAccessToken drops the access half, keeping the refresh half.
func (s *Session) InvalidateAccessToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.tok.ClearAccess(ctx, s.cache)
	s.state = s.restingState()

	return err
}

// Close drops both halves and moves to StateNoSession.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.closeLocked(ctx)
	s.logger.Info("session closed")

	return err
}

func (s *Session) closeLocked(ctx context.Context) error {
	errAccess := s.tok.ClearAccess(ctx, s.cache)
	errRefresh := s.tok.ClearRefresh(ctx, s.cache)
	s.state = StateNoSession

	return errors.Join(errAccess, errRefresh)
}

// refresh joins or starts the single refresh flight. The flight itself is
// detached from ctx so one caller giving up does not fail the others; it
// is bounded by the transport timeouts.
func (s *Session) refresh(ctx context.Context, stale string) (*token.AccessToken, error) {
	flightCtx := context.WithoutCancel(ctx)

	ch := s.flight.DoChan(refreshKey, func() (any, error) {
		return s.doRefresh(flightCtx, stale)
	})

	select {
	case <-ctx.Done():
		return nil, apierr.Transport(fmt.Errorf("session: waiting for token refresh: %w", ctx.Err()))
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		tok, _ := res.Val.(*token.AccessToken)

		return tok.Clone(), nil
	}
}

func (s *Session) doRefresh(ctx context.Context, stale string) (*token.AccessToken, error) {
	now := s.nowFunc()

	s.mu.Lock()

	// A flight that finished just before this one may already have
	// produced a token the caller has not seen.
	if s.usableLocked(now) && s.tok.AccessToken != stale {
		tok := s.tok.Clone()
		s.mu.Unlock()

		return tok, nil
	}

	if !s.tok.HasValidRefreshToken(now) {
		s.state = StateNoSession
		s.mu.Unlock()

		s.logger.Info("no usable refresh token, login required")

		return nil, apierr.SessionClosed("no valid access or refresh token", nil)
	}

	prev := s.state
	s.state = StateOpening
	refreshToken := s.tok.RefreshToken
	s.mu.Unlock()

	s.logger.Debug("refreshing access token")

	fresh, err := s.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, s.refreshFailed(ctx, prev, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tok.Update(fresh)
	s.state = StateOpen
	s.rejected = ""

	if err := s.tok.Save(ctx, s.cache); err != nil {
		s.logger.Warn("persisting refreshed token failed", slog.String("error", err.Error()))
	}

	s.logger.Info("access token refreshed",
		slog.Time("access_expires_at", s.tok.AccessTokenExpiresAt),
		slog.Bool("refresh_rotated", fresh.RefreshToken != ""),
	)

	return s.tok.Clone(), nil
}

func (s *Session) refreshFailed(ctx context.Context, prev State, err error) error {
	ae := apierr.Normalize(err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ae.Kind != apierr.KindAuthorization && ae.Kind != apierr.KindSessionClosed {
		s.state = prev
		s.logger.Warn("token refresh failed", slog.String("error", ae.Error()))

		return ae
	}

	if clearErr := s.closeLocked(ctx); clearErr != nil {
		s.logger.Warn("clearing rejected token failed", slog.String("error", clearErr.Error()))
	}

	s.logger.Info("refresh token rejected, session closed", slog.Int("code", ae.Code))

	return apierr.SessionClosed("refresh token rejected", ae)
}

// usableLocked reports whether the access token may be sent at now.
func (s *Session) usableLocked(now time.Time) bool {
	return s.tok.ValidAt(now) && s.tok.AccessToken != s.rejected
}

// restingState derives the state from the token when no refresh is in flight.
func (s *Session) restingState() State {
	now := s.nowFunc()
	if s.tok.ValidAt(now) || s.tok.HasValidRefreshToken(now) {
		return StateOpen
	}

	return StateNoSession
}
