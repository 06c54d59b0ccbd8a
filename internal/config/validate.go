package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tonimelisma/kakao-go/internal/charset"
	"github.com/tonimelisma/kakao-go/internal/tokenstore"
)

// Validation range constants.
const (
	minConnectTimeout = 100 * time.Millisecond
	minReadTimeout    = 1 * time.Second
	minWorkers        = 1
	maxWorkers        = 64
	minCapacity       = 1
	maxCapacity       = 100_000
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateApp(&cfg.App)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateQueue(&cfg.Queue)...)
	errs = append(errs, validateTokenCache(&cfg.TokenCache)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateApp(a *AppConfig) []error {
	var errs []error

	errs = append(errs, validateHTTPURL("api_host", a.APIHost)...)
	errs = append(errs, validateHTTPURL("auth_host", a.AuthHost)...)

	if a.RedirectURI != "" {
		errs = append(errs, validateHTTPURL("redirect_uri", a.RedirectURI)...)
	}

	return errs
}

func validateHTTPURL(field, raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute http(s) URL, got %q", field, raw)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("read_timeout", n.ReadTimeout, minReadTimeout)...)

	if err := charset.Validate(n.Charset); err != nil {
		errs = append(errs, fmt.Errorf("charset: %w", err))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, value)}
	}

	return nil
}

func validateQueue(q *QueueConfig) []error {
	var errs []error

	if q.Workers < minWorkers || q.Workers > maxWorkers {
		errs = append(errs, fmt.Errorf("workers: must be between %d and %d, got %d", minWorkers, maxWorkers, q.Workers))
	}

	if q.Capacity < minCapacity || q.Capacity > maxCapacity {
		errs = append(errs, fmt.Errorf("capacity: must be between %d and %d, got %d", minCapacity, maxCapacity, q.Capacity))
	}

	return errs
}

func validateTokenCache(t *TokenCacheConfig) []error {
	backend, err := tokenstore.ParseBackend(t.Backend)
	if err != nil {
		return []error{fmt.Errorf("backend: must be one of file, sqlite, redis, memory: %w", err)}
	}

	var errs []error

	if backend == tokenstore.BackendRedis && t.RedisAddr == "" {
		errs = append(errs, errors.New("redis_addr: required when backend is redis"))
	}

	if t.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("redis_db: must be >= 0, got %d", t.RedisDB))
	}

	if t.Watch && backend != tokenstore.BackendFile {
		errs = append(errs, fmt.Errorf("watch: only supported by the file backend, not %s", backend))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}
