package main

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/kakao-go/internal/apierr"
	"github.com/tonimelisma/kakao-go/internal/config"
	"github.com/tonimelisma/kakao-go/internal/kakao"
	"github.com/tonimelisma/kakao-go/internal/tokenstore"
	"github.com/tonimelisma/kakao-go/internal/transport"
)

// version is set at build time via ldflags.
var version = "dev"

// closeTimeout bounds how long a command waits for queued work on exit.
const closeTimeout = 10 * time.Second

// Exit codes.
const (
	exitError        = 1
	exitLoginNeeded  = 2
	exitAPIRejection = 3
)

// Annotation key marking commands that run without a resolved config.
const skipConfigAnnotation = "skipConfig"

// CLIFlags are the persistent flags shared by every command.
type CLIFlags struct {
	ConfigPath   string
	AppKey       string
	TokenBackend string
	JSON         bool
	Verbose      bool
	Debug        bool
	Quiet        bool
}

// CLIContext carries what PersistentPreRunE resolved to the subcommands.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Config
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext installed by the root pre-run.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds the fully assembled root command.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:           "kakao-go",
		Short:         "Kakao API command-line client",
		Long:          "A command-line client for the Kakao user and story APIs.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupCLIContext(cmd, flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.AppKey, "app-key", "", "application REST API key")
	pf.StringVar(&flags.TokenBackend, "token-backend", "", "token cache backend (file, sqlite, redis, memory)")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable info logging")
	pf.BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newTokenInfoCmd())
	cmd.AddCommand(newStoryCmd())

	return cmd
}

// setupCLIContext resolves config and the logger, then installs the
// CLIContext on the command's context.
func setupCLIContext(cmd *cobra.Command, flags CLIFlags) error {
	cc := &CLIContext{
		Flags:  flags,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}

	if cmd.Annotations[skipConfigAnnotation] != "true" {
		cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

		if cmd.Flags().Changed("app-key") {
			cli.AppKey = &flags.AppKey
		}

		if cmd.Flags().Changed("token-backend") {
			cli.TokenBackend = &flags.TokenBackend
		}

		cfg, err := config.Resolve(config.ReadEnvOverrides(), cli)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cc.Cfg = cfg
	}

	cc.Logger = buildLogger(cc.Cfg, flags, cc.Stderr)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(withCLIContext(ctx, cc))

	return nil
}

// buildLogger creates the process logger. The config file sets the
// baseline level; --verbose, --debug, and --quiet override it. log_format
// "auto" picks text on a terminal and JSON otherwise.
func buildLogger(cfg *config.Config, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}

		format = cfg.Logging.LogFormat
	}

	switch {
	case flags.Debug:
		level = slog.LevelDebug
	case flags.Verbose:
		level = slog.LevelInfo
	case flags.Quiet:
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// openSDK builds the SDK from the resolved config.
func openSDK(ctx context.Context, cc *CLIContext) (*kakao.SDK, error) {
	opts, err := sdkOptions(cc.Cfg, cc.Logger)
	if err != nil {
		return nil, err
	}

	if opts.AppKey == "" {
		return nil, fmt.Errorf("no app key configured: set app_key in [app], %s, or --app-key", config.EnvAppKey)
	}

	return kakao.New(ctx, opts)
}

// sdkOptions maps the config file sections onto the SDK's options.
func sdkOptions(cfg *config.Config, logger *slog.Logger) (kakao.Options, error) {
	backend, err := tokenstore.ParseBackend(cfg.TokenCache.Backend)
	if err != nil {
		return kakao.Options{}, err
	}

	connect, read := cfg.Network.Timeouts()

	topts := transport.Options{
		ConnectTimeout:     connect,
		ReadTimeout:        read,
		Charset:            cfg.Network.Charset,
		UserAgent:          cfg.Network.UserAgent,
		InsecureSkipVerify: cfg.Network.InsecureSkipVerify,
		Logger:             logger,
	}

	if cfg.Network.CAFile != "" {
		pool, err := loadCAFile(cfg.Network.CAFile)
		if err != nil {
			return kakao.Options{}, err
		}

		topts.RootCAs = pool
	}

	return kakao.Options{
		AppKey:       cfg.App.AppKey,
		ClientSecret: cfg.App.ClientSecret,
		RedirectURL:  cfg.App.RedirectURI,
		APIHost:      cfg.App.APIHost,
		AuthHost:     cfg.App.AuthHost,
		Transport:    topts,
		Workers:      cfg.Queue.Workers,
		Capacity:     cfg.Queue.Capacity,
		TokenCache: tokenstore.Options{
			Backend: backend,
			Path:    cfg.TokenCache.Path,
			Redis: tokenstore.RedisOptions{
				Addr:     cfg.TokenCache.RedisAddr,
				Password: cfg.TokenCache.RedisPassword,
				DB:       cfg.TokenCache.RedisDB,
				Prefix:   cfg.TokenCache.KeyPrefix,
			},
		},
		WatchTokenFile: cfg.TokenCache.Watch,
		Logger:         logger,
	}, nil
}

func loadCAFile(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ca_file: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}

	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("ca_file %s: no PEM certificates found", path)
	}

	return pool, nil
}

// withSDK opens the SDK, runs fn under an interruptible context, and
// closes the SDK afterwards.
func withSDK(cmd *cobra.Command, fn func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error) error {
	cc := mustCLIContext(cmd.Context())

	ctx, release := interruptContext(cmd.Context(), cc.Logger)
	defer release()

	sdk, err := openSDK(ctx, cc)
	if err != nil {
		return err
	}

	runErr := fn(ctx, cc, sdk)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	if err := sdk.Close(closeCtx); err != nil {
		cc.Logger.Warn("closing SDK", slog.String("error", err.Error()))
	}

	return runErr
}

// exitCode prints err and maps it to a process exit code.
func exitCode(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))

	switch {
	case errors.Is(err, apierr.ErrSessionClosed):
		return exitLoginNeeded
	case errors.Is(err, apierr.ErrAPIStatus), errors.Is(err, apierr.ErrAuthorization):
		return exitAPIRejection
	default:
		return exitError
	}
}

// describeError adds a next step to errors the user can act on.
func describeError(err error) string {
	if errors.Is(err, apierr.ErrSessionClosed) {
		return err.Error() + "\nRun 'kakao-go login' to sign in again."
	}

	return err.Error()
}
