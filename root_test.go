package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/kakao-go/internal/apierr"
	"github.com/tonimelisma/kakao-go/internal/config"
	"github.com/tonimelisma/kakao-go/internal/token"
	"github.com/tonimelisma/kakao-go/internal/tokenfile"
	"github.com/tonimelisma/kakao-go/internal/tokenstore"
)

// cliEnv is a config file and token file pointing at a fake API server.
type cliEnv struct {
	dir        string
	configPath string
	tokenPath  string
	srv        *httptest.Server
}

func newCLIEnv(t *testing.T, handler http.Handler) *cliEnv {
	t.Helper()

	for _, k := range []string{config.EnvConfig, config.EnvAppKey, config.EnvClientSecret, config.EnvTokenBackend} {
		t.Setenv(k, "")
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env := &cliEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		tokenPath:  filepath.Join(dir, "token.json"),
		srv:        srv,
	}

	cfg := fmt.Sprintf(`[app]
app_key = "test-app-key"
api_host = %q
auth_host = %q

[token_cache]
backend = "file"
path = %q
`, srv.URL, srv.URL, env.tokenPath)
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o600))

	return env
}

// seedToken stores a session that stays valid for an hour.
func (e *cliEnv) seedToken(t *testing.T) {
	t.Helper()

	tok := &token.AccessToken{
		AccessToken:           "access-1",
		RefreshToken:          "refresh-1",
		AccessTokenExpiresAt:  time.Now().Add(time.Hour),
		RefreshTokenExpiresAt: token.MaxTime,
	}
	require.NoError(t, tok.Save(context.Background(), tokenfile.New(e.tokenPath)))
}

// run executes the root command with the env's config file.
func (e *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))

	err := cmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

func TestBuildLogger_Levels(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.LogLevel = "error"

	tests := []struct {
		name  string
		cfg   *config.Config
		flags CLIFlags
		want  slog.Level
	}{
		{"no config defaults to warn", nil, CLIFlags{}, slog.LevelWarn},
		{"config sets baseline", cfg, CLIFlags{}, slog.LevelError},
		{"verbose overrides config", cfg, CLIFlags{Verbose: true}, slog.LevelInfo},
		{"debug overrides config", cfg, CLIFlags{Debug: true}, slog.LevelDebug},
		{"quiet", nil, CLIFlags{Quiet: true}, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := buildLogger(tt.cfg, tt.flags, &bytes.Buffer{})
			ctx := context.Background()

			assert.True(t, logger.Enabled(ctx, tt.want))

			if tt.want > slog.LevelDebug {
				assert.False(t, logger.Enabled(ctx, tt.want-4))
			}
		})
	}
}

func TestBuildLogger_Format(t *testing.T) {
	var buf bytes.Buffer

	buildLogger(nil, CLIFlags{}, &buf).Warn("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`, "non-terminal auto format is JSON")

	buf.Reset()

	cfg := config.DefaultConfig()
	cfg.Logging.LogFormat = "text"
	buildLogger(cfg, CLIFlags{}, &buf).Warn("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestSDKOptions_MapsConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.App.AppKey = "key"
	cfg.App.ClientSecret = "secret"
	cfg.Network.ConnectTimeout = "2s"
	cfg.Network.ReadTimeout = "7s"
	cfg.Queue.Workers = 3
	cfg.TokenCache.Backend = "redis"
	cfg.TokenCache.RedisAddr = "localhost:6379"
	cfg.TokenCache.RedisDB = 2

	opts, err := sdkOptions(cfg, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, "key", opts.AppKey)
	assert.Equal(t, "secret", opts.ClientSecret)
	assert.Equal(t, 2*time.Second, opts.Transport.ConnectTimeout)
	assert.Equal(t, 7*time.Second, opts.Transport.ReadTimeout)
	assert.Equal(t, "UTF-8", opts.Transport.Charset)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, tokenstore.BackendRedis, opts.TokenCache.Backend)
	assert.Equal(t, "localhost:6379", opts.TokenCache.Redis.Addr)
	assert.Equal(t, 2, opts.TokenCache.Redis.DB)
	assert.Equal(t, "kakao-go:", opts.TokenCache.Redis.Prefix)
	assert.Nil(t, opts.Transport.RootCAs)
}

func TestSDKOptions_BadCAFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	cfg := config.DefaultConfig()
	cfg.Network.CAFile = path

	_, err := sdkOptions(cfg, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no PEM certificates")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"session closed", apierr.SessionClosed("gone", nil), exitLoginNeeded},
		{"api status", apierr.FromResponse(http.StatusBadRequest, -2, "bad"), exitAPIRejection},
		{"generic", errors.New("boom"), exitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestDescribeError_LoginHint(t *testing.T) {
	assert.Contains(t, describeError(apierr.SessionClosed("gone", nil)), "kakao-go login")
	assert.Equal(t, "boom", describeError(errors.New("boom")))
}

func TestRootCmd_MissingAppKey(t *testing.T) {
	env := newCLIEnv(t, http.NotFoundHandler())
	require.NoError(t, os.WriteFile(env.configPath, []byte("[token_cache]\nbackend = \"memory\"\n"), 0o600))

	_, _, err := env.run(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no app key configured")
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	env := newCLIEnv(t, http.NotFoundHandler())
	require.NoError(t, os.WriteFile(env.configPath, []byte("[queue]\nworkerz = 2\n"), 0o600))

	_, _, err := env.run(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}
