// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for kakao-go. It supports a four-layer
// override chain: defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	App        AppConfig        `toml:"app"`
	Network    NetworkConfig    `toml:"network"`
	Queue      QueueConfig      `toml:"queue"`
	TokenCache TokenCacheConfig `toml:"token_cache"`
	Logging    LoggingConfig    `toml:"logging"`
}

// AppConfig identifies the registered application and the hosts it talks to.
type AppConfig struct {
	AppKey       string `toml:"app_key"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	APIHost      string `toml:"api_host"`
	AuthHost     string `toml:"auth_host"`
}

// NetworkConfig controls the HTTP transport. Timeouts are Go duration
// strings. insecure_skip_verify disables TLS certificate checks and exists
// for test environments only.
type NetworkConfig struct {
	ConnectTimeout     string `toml:"connect_timeout"`
	ReadTimeout        string `toml:"read_timeout"`
	Charset            string `toml:"charset"`
	UserAgent          string `toml:"user_agent"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	CAFile             string `toml:"ca_file"`
}

// QueueConfig sizes the task queue.
type QueueConfig struct {
	Workers  int `toml:"workers"`
	Capacity int `toml:"capacity"`
}

// TokenCacheConfig selects where the session token is persisted. Path is
// used by the file and sqlite backends; an empty path means the default
// under the data directory.
type TokenCacheConfig struct {
	Backend       string `toml:"backend"`
	Path          string `toml:"path"`
	Watch         bool   `toml:"watch"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"key_prefix"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish
// "not specified" (nil) from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath   string  // --config flag (empty = use default)
	AppKey       *string // --app-key flag
	TokenBackend *string // --token-backend flag
}

// Timeouts returns the parsed network timeouts. Call only on a validated
// Config; unparseable values yield zero, which the transport replaces with
// its defaults.
func (n *NetworkConfig) Timeouts() (connect, read time.Duration) {
	connect, _ = time.ParseDuration(n.ConnectTimeout)
	read, _ = time.ParseDuration(n.ReadTimeout)

	return connect, read
}
