package config

// Default values for configuration options. These are "layer 0" of the
// override chain.
const (
	defaultAPIHost        = "https://kapi.kakao.com"
	defaultAuthHost       = "https://kauth.kakao.com"
	defaultConnectTimeout = "5s"
	defaultReadTimeout    = "30s"
	defaultCharset        = "UTF-8"
	defaultUserAgent      = "kakao-go/0.1"
	defaultWorkers        = 1
	defaultCapacity       = 256
	defaultBackend        = "file"
	defaultKeyPrefix      = "kakao-go:"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			APIHost:  defaultAPIHost,
			AuthHost: defaultAuthHost,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			ReadTimeout:    defaultReadTimeout,
			Charset:        defaultCharset,
			UserAgent:      defaultUserAgent,
		},
		Queue: QueueConfig{
			Workers:  defaultWorkers,
			Capacity: defaultCapacity,
		},
		TokenCache: TokenCacheConfig{
			Backend:   defaultBackend,
			KeyPrefix: defaultKeyPrefix,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
