package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/kakao-go/internal/apierr"
	"github.com/tonimelisma/kakao-go/internal/token"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeRefresher counts calls and returns a canned result. If gate is set,
// each call blocks until it is closed.
type fakeRefresher struct {
	calls   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
	tok     *token.AccessToken
	err     error
	gotRT   atomic.Value
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*token.AccessToken, error) {
	f.calls.Add(1)
	f.gotRT.Store(refreshToken)

	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}

	if f.gate != nil {
		<-f.gate
	}

	if f.err != nil {
		return nil, f.err
	}

	return f.tok.Clone(), nil
}

func newTestSession(t *testing.T, cache token.Cache, r Refresher) *Session {
	t.Helper()

	s := New(cache, r, nil)
	s.nowFunc = func() time.Time { return testNow }

	return s
}

func expiredWithRefresh() *token.AccessToken {
	return &token.AccessToken{
		AccessToken:           "old-at",
		RefreshToken:          "rt",
		AccessTokenExpiresAt:  testNow.Add(-time.Minute),
		RefreshTokenExpiresAt: testNow.Add(24 * time.Hour),
	}
}

func seed(t *testing.T, tok *token.AccessToken) *token.MemoryCache {
	t.Helper()

	cache := token.NewMemoryCache()
	require.NoError(t, tok.Save(context.Background(), cache))

	return cache
}

func TestNew_StartsEmpty(t *testing.T) {
	s := newTestSession(t, token.NewMemoryCache(), &fakeRefresher{})
	assert.Equal(t, StateNoSession, s.State())
	assert.False(t, s.CurrentToken().HasValidAccessToken())
}

func TestRestore(t *testing.T) {
	cache := seed(t, &token.AccessToken{
		AccessToken: "at", AccessTokenExpiresAt: testNow.Add(time.Hour), RefreshTokenExpiresAt: token.MinTime,
	})

	s := newTestSession(t, cache, &fakeRefresher{})
	require.NoError(t, s.Restore(context.Background()))

	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, "at", s.CurrentToken().AccessToken)
}

func TestRestore_EmptyCacheIsNoSession(t *testing.T) {
	s := newTestSession(t, token.NewMemoryCache(), &fakeRefresher{})
	require.NoError(t, s.Restore(context.Background()))
	assert.Equal(t, StateNoSession, s.State())
}

func TestOpen_PersistsToken(t *testing.T) {
	cache := token.NewMemoryCache()
	s := newTestSession(t, cache, &fakeRefresher{})

	tok := &token.AccessToken{
		AccessToken: "at", RefreshToken: "rt",
		AccessTokenExpiresAt: testNow.Add(time.Hour), RefreshTokenExpiresAt: token.MaxTime,
	}
	require.NoError(t, s.Open(context.Background(), tok))

	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, "at", cache.Snapshot()[token.KeyAccessToken])

	// Mutating the caller's copy must not affect the session.
	tok.AccessToken = "mutated"
	assert.Equal(t, "at", s.CurrentToken().AccessToken)

	assert.Error(t, s.Open(context.Background(), token.Empty()))
}

func TestEnsureValid_ValidTokenNoRefresh(t *testing.T) {
	r := &fakeRefresher{}
	cache := seed(t, &token.AccessToken{AccessToken: "at", AccessTokenExpiresAt: testNow.Add(time.Hour)})

	s := newTestSession(t, cache, r)
	require.NoError(t, s.Restore(context.Background()))

	tok, err := s.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Zero(t, r.calls.Load())
}

func TestEnsureValid_RefreshesExpiredToken(t *testing.T) {
	r := &fakeRefresher{tok: &token.AccessToken{
		AccessToken:          "new-at",
		AccessTokenExpiresAt: testNow.Add(time.Hour),
	}}
	cache := seed(t, expiredWithRefresh())

	s := newTestSession(t, cache, r)
	require.NoError(t, s.Restore(context.Background()))

	tok, err := s.EnsureValid(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "new-at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken, "refresh token kept when response omits it")
	assert.Equal(t, "rt", r.gotRT.Load())
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, StateOpen, s.State())

	snap := cache.Snapshot()
	assert.Equal(t, "new-at", snap[token.KeyAccessToken])
	assert.Equal(t, "rt", snap[token.KeyRefreshToken])
}

func TestEnsureValid_RotatedRefreshToken(t *testing.T) {
	r := &fakeRefresher{tok: &token.AccessToken{
		AccessToken:           "new-at",
		RefreshToken:          "new-rt",
		AccessTokenExpiresAt:  testNow.Add(time.Hour),
		RefreshTokenExpiresAt: testNow.Add(60 * 24 * time.Hour),
	}}
	cache := seed(t, expiredWithRefresh())

	s := newTestSession(t, cache, r)
	require.NoError(t, s.Restore(context.Background()))

	tok, err := s.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-rt", tok.RefreshToken)
	assert.Equal(t, "new-rt", cache.Snapshot()[token.KeyRefreshToken])
}

func TestEnsureValid_NoRefreshTokenIsSessionClosed(t *testing.T) {
	r := &fakeRefresher{}
	s := newTestSession(t, token.NewMemoryCache(), r)

	_, err := s.EnsureValid(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrSessionClosed)
	assert.Zero(t, r.calls.Load())
	assert.Equal(t, StateNoSession, s.State())
}

func TestEnsureValid_ExpiredRefreshTokenIsSessionClosed(t *testing.T) {
	tok := expiredWithRefresh()
	tok.RefreshTokenExpiresAt = testNow.Add(-time.Second)

	r := &fakeRefresher{}
	s := newTestSession(t, seed(t, tok), r)
	require.NoError(t, s.Restore(context.Background()))

	_, err := s.EnsureValid(context.Background())
	assert.ErrorIs(t, err, apierr.ErrSessionClosed)
	assert.Zero(t, r.calls.Load())
}

func TestEnsureValid_RejectedRefreshClearsBothHalves(t *testing.T) {
	r := &fakeRefresher{err: apierr.FromResponse(http.StatusUnauthorized, -401, "invalid_grant")}
	cache := seed(t, expiredWithRefresh())

	s := newTestSession(t, cache, r)
	require.NoError(t, s.Restore(context.Background()))

	_, err := s.EnsureValid(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrSessionClosed)
	assert.Equal(t, StateNoSession, s.State())
	assert.Empty(t, cache.Snapshot())
	assert.False(t, s.CurrentToken().HasRefreshToken())
}

func TestEnsureValid_TransportFailureKeepsToken(t *testing.T) {
	r := &fakeRefresher{err: errors.New("dial tcp: connection refused")}
	cache := seed(t, expiredWithRefresh())

	s := newTestSession(t, cache, r)
	require.NoError(t, s.Restore(context.Background()))

	_, err := s.EnsureValid(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrTransport)
	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, "rt", s.CurrentToken().RefreshToken)
	assert.Equal(t, "rt", cache.Snapshot()[token.KeyRefreshToken])
}

func TestEnsureValid_ConcurrentCallersShareOneRefresh(t *testing.T) {
	r := &fakeRefresher{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
		tok:     &token.AccessToken{AccessToken: "new-at", AccessTokenExpiresAt: testNow.Add(time.Hour)},
	}

	s := newTestSession(t, seed(t, expiredWithRefresh()), r)
	require.NoError(t, s.Restore(context.Background()))

	const callers = 8

	var wg sync.WaitGroup

	results := make([]*token.AccessToken, callers)
	errs := make([]error, callers)

	wg.Add(1)

	go func() {
		defer wg.Done()
		results[0], errs[0] = s.EnsureValid(context.Background())
	}()

	<-r.entered
	assert.Equal(t, StateOpening, s.State())

	for i := 1; i < callers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			results[i], errs[i] = s.EnsureValid(context.Background())
		}()
	}

	// Let the late callers reach the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(r.gate)
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "new-at", results[i].AccessToken)
	}
}

func TestEnsureValid_WaiterContextCancel(t *testing.T) {
	r := &fakeRefresher{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
		tok:     &token.AccessToken{AccessToken: "new-at", AccessTokenExpiresAt: testNow.Add(time.Hour)},
	}

	s := newTestSession(t, seed(t, expiredWithRefresh()), r)
	require.NoError(t, s.Restore(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)

	go func() {
		_, err := s.EnsureValid(ctx)
		errCh <- err
	}()

	<-r.entered
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)

	// The flight still completes for everyone else.
	close(r.gate)

	tok, err := s.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-at", tok.AccessToken)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestRefreshIfStale(t *testing.T) {
	r := &fakeRefresher{tok: &token.AccessToken{AccessToken: "new-at", AccessTokenExpiresAt: testNow.Add(time.Hour)}}
	cache := seed(t, &token.AccessToken{
		AccessToken: "server-rejected", RefreshToken: "rt",
		AccessTokenExpiresAt: testNow.Add(time.Hour), RefreshTokenExpiresAt: token.MaxTime,
	})

	s := newTestSession(t, cache, r)
	require.NoError(t, s.Restore(context.Background()))

	// Locally valid but rejected by the server: refresh is forced.
	tok, err := s.RefreshIfStale(context.Background(), "server-rejected")
	require.NoError(t, err)
	assert.Equal(t, "new-at", tok.AccessToken)
	assert.Equal(t, int32(1), r.calls.Load())

	// A second caller holding the same stale token reuses the fresh one.
	tok, err = s.RefreshIfStale(context.Background(), "server-rejected")
	require.NoError(t, err)
	assert.Equal(t, "new-at", tok.AccessToken)
	assert.Equal(t, int32(1), r.calls.Load())
}

// A forced refresh that joins a flight started without a stale token must
// still end with a refreshed token, not the one the server just rejected.
func TestRefreshIfStale_JoinsUnforcedFlight(t *testing.T) {
	r := &fakeRefresher{tok: &token.AccessToken{AccessToken: "fresh", AccessTokenExpiresAt: testNow.Add(time.Hour)}}
	cache := seed(t, &token.AccessToken{
		AccessToken: "B", RefreshToken: "rt",
		AccessTokenExpiresAt: testNow.Add(time.Hour), RefreshTokenExpiresAt: token.MaxTime,
	})

	s := newTestSession(t, cache, r)
	require.NoError(t, s.Restore(context.Background()))

	entered := make(chan struct{})
	hold := make(chan struct{})

	var once sync.Once

	s.nowFunc = func() time.Time {
		once.Do(func() {
			close(entered)
			<-hold
		})

		return testNow
	}

	type result struct {
		tok *token.AccessToken
		err error
	}

	unforced := make(chan result, 1)

	go func() {
		tok, err := s.refresh(context.Background(), "")
		unforced <- result{tok, err}
	}()

	<-entered

	forced := make(chan result, 1)

	go func() {
		tok, err := s.RefreshIfStale(context.Background(), "B")
		forced <- result{tok, err}
	}()

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()

		return s.rejected == "B"
	}, time.Second, time.Millisecond)

	close(hold)

	got := <-forced
	require.NoError(t, got.err)
	assert.Equal(t, "fresh", got.tok.AccessToken)

	got = <-unforced
	require.NoError(t, got.err)
	assert.Equal(t, "fresh", got.tok.AccessToken)

	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, "fresh", cache.Snapshot()[token.KeyAccessToken])
}

func TestEnsureValid_RejectedTokenNotReused(t *testing.T) {
	r := &fakeRefresher{tok: &token.AccessToken{AccessToken: "fresh", AccessTokenExpiresAt: testNow.Add(time.Hour)}}
	s := newTestSession(t, token.NewMemoryCache(), r)

	require.NoError(t, s.Open(context.Background(), &token.AccessToken{
		AccessToken: "B", RefreshToken: "rt",
		AccessTokenExpiresAt: testNow.Add(time.Hour), RefreshTokenExpiresAt: token.MaxTime,
	}))

	s.mu.Lock()
	s.rejected = "B"
	s.mu.Unlock()

	tok, err := s.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestRestore_SkippedDuringRefresh(t *testing.T) {
	r := &fakeRefresher{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
		tok:     &token.AccessToken{AccessToken: "new-at", AccessTokenExpiresAt: testNow.Add(time.Hour)},
	}
	cache := seed(t, expiredWithRefresh())

	s := newTestSession(t, cache, r)
	require.NoError(t, s.Restore(context.Background()))

	done := make(chan error, 1)

	go func() {
		_, err := s.EnsureValid(context.Background())
		done <- err
	}()

	<-r.entered

	// Another process rewrites the cache while the refresh is running.
	require.NoError(t, (&token.AccessToken{
		AccessToken: "other", AccessTokenExpiresAt: testNow.Add(time.Hour), RefreshTokenExpiresAt: token.MinTime,
	}).Save(context.Background(), cache))

	require.NoError(t, s.Restore(context.Background()))
	assert.Equal(t, StateOpening, s.State())
	assert.Equal(t, "old-at", s.CurrentToken().AccessToken)

	close(r.gate)
	require.NoError(t, <-done)

	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, "new-at", s.CurrentToken().AccessToken)
	assert.Equal(t, "rt", s.CurrentToken().RefreshToken)
}

func TestInvalidateAccessToken(t *testing.T) {
	cache := seed(t, &token.AccessToken{
		AccessToken: "at", RefreshToken: "rt",
		AccessTokenExpiresAt: testNow.Add(time.Hour), RefreshTokenExpiresAt: token.MaxTime,
	})

	s := newTestSession(t, cache, &fakeRefresher{})
	require.NoError(t, s.Restore(context.Background()))
	require.NoError(t, s.InvalidateAccessToken(context.Background()))

	assert.Empty(t, s.CurrentToken().AccessToken)
	assert.Equal(t, StateOpen, s.State(), "refresh half still usable")

	snap := cache.Snapshot()
	assert.NotContains(t, snap, token.KeyAccessToken)
	assert.Equal(t, "rt", snap[token.KeyRefreshToken])
}

func TestClose(t *testing.T) {
	cache := seed(t, expiredWithRefresh())

	s := newTestSession(t, cache, &fakeRefresher{})
	require.NoError(t, s.Restore(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, StateNoSession, s.State())
	assert.Empty(t, cache.Snapshot())
}

func TestPersist(t *testing.T) {
	cache := token.NewMemoryCache()
	s := newTestSession(t, cache, &fakeRefresher{})
	require.NoError(t, s.Persist(context.Background()))
	assert.Len(t, cache.Snapshot(), 4)
}

func TestRefresherFunc(t *testing.T) {
	var got string

	f := RefresherFunc(func(_ context.Context, rt string) (*token.AccessToken, error) {
		got = rt
		return token.Empty(), nil
	})

	_, err := f.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "rt", got)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "state(9)", State(9).String())
}
