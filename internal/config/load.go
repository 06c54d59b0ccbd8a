package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" hints.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain
// defaults -> config file -> environment variables -> CLI flags, then
// fills derived values and validates the result.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.AppKey != "" {
		cfg.App.AppKey = env.AppKey
	}

	if env.ClientSecret != "" {
		cfg.App.ClientSecret = env.ClientSecret
	}

	if env.TokenBackend != "" {
		cfg.TokenCache.Backend = env.TokenBackend
	}

	if cli.AppKey != nil {
		cfg.App.AppKey = *cli.AppKey
	}

	if cli.TokenBackend != nil {
		cfg.TokenCache.Backend = *cli.TokenBackend
	}

	cfg.TokenCache.Path = expandTilde(cfg.TokenCache.Path)
	if cfg.TokenCache.Path == "" {
		cfg.TokenCache.Path = DefaultTokenPath(cfg.TokenCache.Backend)
	}

	cfg.Network.CAFile = expandTilde(cfg.Network.CAFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}
