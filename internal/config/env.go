package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "KAKAO_GO_CONFIG"
	EnvAppKey       = "KAKAO_GO_APP_KEY"
	EnvClientSecret = "KAKAO_GO_CLIENT_SECRET"
	EnvTokenBackend = "KAKAO_GO_TOKEN_BACKEND"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // KAKAO_GO_CONFIG: override config file path
	AppKey       string // KAKAO_GO_APP_KEY
	ClientSecret string // KAKAO_GO_CLIENT_SECRET
	TokenBackend string // KAKAO_GO_TOKEN_BACKEND
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		AppKey:       os.Getenv(EnvAppKey),
		ClientSecret: os.Getenv(EnvClientSecret),
		TokenBackend: os.Getenv(EnvTokenBackend),
	}
}
