package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/kakao-go/internal/token"
	"github.com/tonimelisma/kakao-go/internal/tokenfile"
)

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend(" SQLite ")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, b)

	_, err = ParseBackend("etcd")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	s, err := Open(context.Background(), Options{Backend: BackendFile, Path: path}, nil)
	require.NoError(t, err)
	defer s.Close()

	fc, ok := Unwrap(s).(*tokenfile.Cache)
	require.True(t, ok)
	assert.Equal(t, path, fc.Path())

	exerciseCache(t, s)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), Options{Backend: BackendMemory}, nil)
	require.NoError(t, err)
	defer s.Close()

	exerciseCache(t, s)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: BackendFile}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Backend: BackendSQLite}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Backend: "nope"}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestSQLiteCache(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "token.db")

	s, err := Open(context.Background(), Options{Backend: BackendSQLite, Path: dbPath}, nil)
	require.NoError(t, err)

	exerciseCache(t, s)
	require.NoError(t, s.Close())

	_, err = os.Stat(dbPath)
	require.NoError(t, err)

	// Reopening runs migrations idempotently and keeps data.
	reopened, err := OpenSQLite(context.Background(), dbPath, nil)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(context.Background(), token.KeyRefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rt", v)
}

func TestSQLiteCache_JournalMode(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "token.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	var mode string
	require.NoError(t, s.db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

// exerciseCache runs the token persistence contract against c: save all
// four keys, clear the access half, and check the refresh half survives.
func exerciseCache(t *testing.T, c token.Cache) {
	t.Helper()

	ctx := context.Background()

	tok := &token.AccessToken{
		AccessToken:           "at",
		RefreshToken:          "rt",
		AccessTokenExpiresAt:  time.UnixMilli(time.Now().Add(time.Hour).UnixMilli()),
		RefreshTokenExpiresAt: token.MaxTime,
	}
	require.NoError(t, tok.Save(ctx, c))

	loaded, err := token.Load(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "at", loaded.AccessToken)
	assert.True(t, loaded.HasValidAccessToken())
	assert.True(t, loaded.RefreshTokenExpiresAt.Equal(token.MaxTime))

	require.NoError(t, loaded.ClearAccess(ctx, c))

	_, ok, err := c.Get(ctx, token.KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Get(ctx, token.KeyAccessTokenExpiresAt)
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := c.Get(ctx, token.KeyRefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rt", v)
}
