package kakao

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/kakao-go/internal/apierr"
	"github.com/tonimelisma/kakao-go/internal/session"
	"github.com/tonimelisma/kakao-go/internal/token"
	"github.com/tonimelisma/kakao-go/internal/transport"
)

// countingRefresher hands out "fresh" and counts calls.
type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) Refresh(context.Context, string) (*token.AccessToken, error) {
	r.calls.Add(1)

	if r.err != nil {
		return nil, r.err
	}

	return &token.AccessToken{
		AccessToken:          "fresh",
		AccessTokenExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func validToken(access string) *token.AccessToken {
	return &token.AccessToken{
		AccessToken:           access,
		RefreshToken:          "refresh",
		AccessTokenExpiresAt:  time.Now().Add(time.Hour),
		RefreshTokenExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

type testEnv struct {
	srv       *httptest.Server
	client    *Client
	session   *session.Session
	cache     *token.MemoryCache
	refresher *countingRefresher
	requests  atomic.Int32
}

// newTestEnv starts handler behind a counting wrapper and opens a session
// holding tok.
func newTestEnv(t *testing.T, tok *token.AccessToken, handler http.HandlerFunc) *testEnv {
	t.Helper()

	env := &testEnv{
		cache:     token.NewMemoryCache(),
		refresher: &countingRefresher{},
	}

	env.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(env.srv.Close)

	env.session = session.New(env.cache, env.refresher, nil)
	if tok != nil {
		require.NoError(t, env.session.Open(context.Background(), tok))
	}

	tc := transport.New(transport.Options{ReadTimeout: 5 * time.Second})
	env.client = NewClient(tc, env.session, env.srv.URL, "UTF-8", nil)

	return env
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{"code": -401, "msg": "this access token does not exist"})
}

func TestDo_AttachesBearerToken(t *testing.T) {
	env := newTestEnv(t, validToken("good"), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer good", r.Header.Get("Authorization"))
		assert.Equal(t, mePath, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"id": 42, "properties": map[string]string{"nickname": "ryan"}})
	})

	u, err := env.client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)
	assert.Equal(t, "ryan", u.Nickname())
	assert.Equal(t, int32(0), env.refresher.calls.Load())
}

func TestDo_RefreshAndRetryOnce(t *testing.T) {
	env := newTestEnv(t, validToken("stale"), func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			unauthorized(w)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"id": 7})
	})

	u, err := env.client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)

	assert.Equal(t, int32(2), env.requests.Load())
	assert.Equal(t, int32(1), env.refresher.calls.Load())
	assert.Equal(t, "fresh", env.session.CurrentToken().AccessToken)

	stored, ok, err := env.cache.Get(context.Background(), token.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", stored)
}

func TestDo_SecondUnauthorizedClosesSession(t *testing.T) {
	env := newTestEnv(t, validToken("stale"), func(w http.ResponseWriter, _ *http.Request) {
		unauthorized(w)
	})

	_, err := env.client.Me(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrSessionClosed)

	assert.Equal(t, int32(2), env.requests.Load())
	assert.Equal(t, int32(1), env.refresher.calls.Load())
	assert.Empty(t, env.session.CurrentToken().AccessToken)
}

func TestDo_RefreshRejectedClosesSession(t *testing.T) {
	env := newTestEnv(t, validToken("stale"), func(w http.ResponseWriter, _ *http.Request) {
		unauthorized(w)
	})
	env.refresher.err = &apierr.Error{Kind: apierr.KindAuthorization, Code: -401, HTTPStatus: http.StatusUnauthorized}

	_, err := env.client.Me(context.Background())
	assert.ErrorIs(t, err, apierr.ErrSessionClosed)
	assert.Equal(t, int32(1), env.requests.Load())
	assert.Equal(t, session.StateNoSession, env.session.State())
}

func TestDo_ExpiredTokenRefreshedBeforeSending(t *testing.T) {
	tok := validToken("expired")
	tok.AccessTokenExpiresAt = time.Now().Add(-time.Minute)

	env := newTestEnv(t, tok, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"id": 1})
	})

	_, err := env.client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), env.requests.Load())
	assert.Equal(t, int32(1), env.refresher.calls.Load())
}

func TestDo_NoSessionSendsNothing(t *testing.T) {
	env := newTestEnv(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 1})
	})

	_, err := env.client.Me(context.Background())
	assert.ErrorIs(t, err, apierr.ErrSessionClosed)
	assert.Equal(t, int32(0), env.requests.Load())
	assert.Equal(t, int32(0), env.refresher.calls.Load())
}

func TestDo_APIStatusError(t *testing.T) {
	env := newTestEnv(t, validToken("good"), func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": -2, "msg": "invalid parameter"})
	})

	_, err := env.client.Me(context.Background())

	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.KindAPIStatus, ae.Kind)
	assert.Equal(t, -2, ae.Code)
	assert.Equal(t, "invalid parameter", ae.Message)
	assert.Equal(t, http.StatusBadRequest, ae.HTTPStatus)
	assert.Equal(t, int32(1), env.requests.Load())
	assert.Equal(t, int32(0), env.refresher.calls.Load())
}

func TestDo_NonJSONErrorBody(t *testing.T) {
	env := newTestEnv(t, validToken("good"), func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, err := env.client.Me(context.Background())

	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.KindAPIStatus, ae.Kind)
	assert.Equal(t, http.StatusBadGateway, ae.HTTPStatus)
	assert.Equal(t, "upstream exploded", ae.Message)
}

func TestDo_TransportError(t *testing.T) {
	env := newTestEnv(t, validToken("good"), func(http.ResponseWriter, *http.Request) {})
	env.srv.Close()

	_, err := env.client.Me(context.Background())

	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.KindTransport, ae.Kind)
	assert.Equal(t, apierr.ClientErrorCode, ae.Code)
	assert.Equal(t, http.StatusInternalServerError, ae.HTTPStatus)
}

func TestDoJSON_MalformedBody(t *testing.T) {
	env := newTestEnv(t, validToken("good"), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not json"))
	})

	_, err := env.client.Me(context.Background())
	assert.ErrorIs(t, err, apierr.ErrTransport)
}

func TestDo_ConcurrentRejectionsShareOneRefresh(t *testing.T) {
	env := newTestEnv(t, validToken("stale"), func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			unauthorized(w)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"id": 1})
	})

	const n = 8

	var wg sync.WaitGroup

	errs := make([]error, n)

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, errs[i] = env.client.Me(context.Background())
		}()
	}

	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, int32(1), env.refresher.calls.Load())
}

func TestStripQuery(t *testing.T) {
	assert.Equal(t, "https://kapi.kakao.com/v1/api/story/mystory", stripQuery("https://kapi.kakao.com/v1/api/story/mystory?id=abc"))
	assert.Equal(t, "https://kapi.kakao.com/v2/user/me", stripQuery("https://kapi.kakao.com/v2/user/me"))
}
