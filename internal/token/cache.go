package token

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"
)

// Cache keys. The access half and the refresh half each own two keys.
const (
	KeyAccessToken          = "kakao.token.access_token"
	KeyAccessTokenExpiresAt = "kakao.token.access_token.expires_at"
	KeyRefreshToken         = "kakao.token.refresh_token"
	KeyRefreshExpiresAt     = "kakao.token.refresh_token.expires_at"
)

// AllKeys lists every key a token occupies, access half first.
var AllKeys = []string{KeyAccessToken, KeyAccessTokenExpiresAt, KeyRefreshToken, KeyRefreshExpiresAt}

// Cache is a string key-value store the token is persisted to. Get reports
// ok=false for absent keys. Save writes all given entries together.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Save(ctx context.Context, entries map[string]string) error
	Remove(ctx context.Context, keys ...string) error
}

// Save writes all four entries. Expiries are stored as epoch milliseconds.
func (t *AccessToken) Save(ctx context.Context, c Cache) error {
	err := c.Save(ctx, map[string]string{
		KeyAccessToken:          t.AccessToken,
		KeyAccessTokenExpiresAt: formatTime(t.AccessTokenExpiresAt),
		KeyRefreshToken:         t.RefreshToken,
		KeyRefreshExpiresAt:     formatTime(t.RefreshTokenExpiresAt),
	})
	if err != nil {
		return fmt.Errorf("token: saving to cache: %w", err)
	}

	return nil
}

// Load restores a token from c. Absent entries yield empty strings and
// MinTime expiries, so an empty cache loads as Empty().
func Load(ctx context.Context, c Cache) (*AccessToken, error) {
	tok := Empty()

	var err error

	if tok.AccessToken, err = getString(ctx, c, KeyAccessToken); err != nil {
		return nil, err
	}

	if tok.RefreshToken, err = getString(ctx, c, KeyRefreshToken); err != nil {
		return nil, err
	}

	if tok.AccessTokenExpiresAt, err = getTime(ctx, c, KeyAccessTokenExpiresAt); err != nil {
		return nil, err
	}

	if tok.RefreshTokenExpiresAt, err = getTime(ctx, c, KeyRefreshExpiresAt); err != nil {
		return nil, err
	}

	return tok, nil
}

// ClearAccess drops the access half in memory and removes exactly its two keys.
func (t *AccessToken) ClearAccess(ctx context.Context, c Cache) error {
	t.clearAccess()

	if err := c.Remove(ctx, KeyAccessToken, KeyAccessTokenExpiresAt); err != nil {
		return fmt.Errorf("token: clearing access token: %w", err)
	}

	return nil
}

// ClearRefresh drops the refresh half in memory and removes exactly its two keys.
func (t *AccessToken) ClearRefresh(ctx context.Context, c Cache) error {
	t.clearRefresh()

	if err := c.Remove(ctx, KeyRefreshToken, KeyRefreshExpiresAt); err != nil {
		return fmt.Errorf("token: clearing refresh token: %w", err)
	}

	return nil
}

func getString(ctx context.Context, c Cache, key string) (string, error) {
	v, _, err := c.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("token: reading %s: %w", key, err)
	}

	return v, nil
}

func getTime(ctx context.Context, c Cache, key string) (time.Time, error) {
	v, ok, err := c.Get(ctx, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("token: reading %s: %w", key, err)
	}

	if !ok || v == "" {
		return MinTime, nil
	}

	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("token: parsing %s: %w", key, err)
	}

	return time.UnixMilli(ms), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = MinTime
	}

	return strconv.FormatInt(t.UnixMilli(), 10)
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[key]

	return v, ok, nil
}

func (m *MemoryCache) Save(_ context.Context, entries map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	maps.Copy(m.entries, entries)

	return nil
}

func (m *MemoryCache) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.entries, k)
	}

	return nil
}

// Snapshot returns a copy of all entries.
func (m *MemoryCache) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.entries)
}
