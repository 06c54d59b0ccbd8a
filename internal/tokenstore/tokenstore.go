// Package tokenstore selects and opens the backend the session persists
// its token to: a JSON file, SQLite, Redis, or process memory.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tonimelisma/kakao-go/internal/token"
	"github.com/tonimelisma/kakao-go/internal/tokenfile"
)

// Backend names a token cache implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

var ErrUnknownBackend = errors.New("tokenstore: unknown backend")

// ParseBackend maps a config string to a Backend.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	if !b.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}

	return b, nil
}

func (b Backend) String() string { return string(b) }

// IsValid reports whether b is a known backend.
func (b Backend) IsValid() bool {
	switch b {
	case BackendFile, BackendSQLite, BackendRedis, BackendMemory:
		return true
	default:
		return false
	}
}

// Options selects and configures a backend. Path is used by the file and
// sqlite backends, Redis by the redis backend.
type Options struct {
	Backend Backend
	Path    string
	Redis   RedisOptions
}

// Store is an opened token cache. Close releases its resources.
type Store interface {
	token.Cache
	Close() error
}

// Open creates the configured backend.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case BackendFile:
		if opts.Path == "" {
			return nil, errors.New("tokenstore: file backend requires a path")
		}

		return nopCloser{tokenfile.New(opts.Path)}, nil
	case BackendSQLite:
		if opts.Path == "" {
			return nil, errors.New("tokenstore: sqlite backend requires a path")
		}

		return OpenSQLite(ctx, opts.Path, logger)
	case BackendRedis:
		rc, err := OpenRedis(opts.Redis)
		if err != nil {
			return nil, err
		}

		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, fmt.Errorf("tokenstore: redis at %s unreachable: %w", opts.Redis.Addr, err)
		}

		return rc, nil
	case BackendMemory:
		return nopCloser{token.NewMemoryCache()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

type nopCloser struct {
	token.Cache
}

func (nopCloser) Close() error { return nil }

// Unwrap returns the underlying cache, e.g. to reach a *tokenfile.Cache
// for watching.
func Unwrap(s Store) token.Cache {
	if n, ok := s.(nopCloser); ok {
		return n.Cache
	}

	return s
}
