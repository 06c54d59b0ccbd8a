package kakao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tonimelisma/kakao-go/internal/session"
	"github.com/tonimelisma/kakao-go/internal/taskqueue"
	"github.com/tonimelisma/kakao-go/internal/token"
	"github.com/tonimelisma/kakao-go/internal/tokenfile"
	"github.com/tonimelisma/kakao-go/internal/tokenstore"
	"github.com/tonimelisma/kakao-go/internal/transport"
)

// Options wires an SDK. Zero values take the package defaults.
type Options struct {
	AppKey       string
	ClientSecret string
	RedirectURL  string
	APIHost      string
	AuthHost     string

	Transport transport.Options
	Workers   int
	Capacity  int

	// Dispatcher delivers callbacks; nil means a serial dispatcher.
	Dispatcher taskqueue.Dispatcher

	TokenCache tokenstore.Options
	// WatchTokenFile reloads the session when another process rewrites
	// the token file. Only meaningful for the file backend.
	WatchTokenFile bool

	Logger *slog.Logger
}

// SDK owns one session and the pipeline that uses it. Close releases
// everything it opened.
type SDK struct {
	OAuth   *OAuth
	Client  *Client
	Service *Service
	Session *session.Session
	Queue   *taskqueue.Queue

	transport *transport.Client
	store     tokenstore.Store
	logger    *slog.Logger

	stopWatch context.CancelFunc
	watchWG   sync.WaitGroup
}

// New opens the token cache, restores the persisted session, and starts
// the task queue.
func New(ctx context.Context, opts Options) (*SDK, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.AppKey == "" {
		return nil, errors.New("kakao: app key is required")
	}

	store, err := tokenstore.Open(ctx, opts.TokenCache, logger)
	if err != nil {
		return nil, fmt.Errorf("kakao: opening token cache: %w", err)
	}

	topts := opts.Transport
	if topts.Logger == nil {
		topts.Logger = logger
	}

	tc := transport.New(topts)

	oauth := NewOAuth(OAuthOptions{
		ClientID:     opts.AppKey,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURL,
		AuthHost:     opts.AuthHost,
		HTTPClient:   tc.HTTPClient(),
		Logger:       logger,
	})

	sess := session.New(store, oauth, logger)
	if err := sess.Restore(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("kakao: %w", err)
	}

	qopts := []taskqueue.Option{
		taskqueue.WithWorkers(opts.Workers),
		taskqueue.WithCapacity(opts.Capacity),
		taskqueue.WithLogger(logger),
	}

	if opts.Dispatcher != nil {
		qopts = append(qopts, taskqueue.WithDispatcher(opts.Dispatcher))
	}

	if opts.Transport.TracerProvider != nil {
		qopts = append(qopts, taskqueue.WithTracerProvider(opts.Transport.TracerProvider))
	}

	queue := taskqueue.New(qopts...)
	client := NewClient(tc, sess, opts.APIHost, topts.Charset, logger)

	sdk := &SDK{
		OAuth:     oauth,
		Client:    client,
		Service:   NewService(client, queue),
		Session:   sess,
		Queue:     queue,
		transport: tc,
		store:     store,
		logger:    logger,
	}

	if opts.WatchTokenFile {
		sdk.watchTokenFile()
	}

	return sdk, nil
}

// Login installs a token obtained from Exchange or LoginWithBrowser.
func (s *SDK) Login(ctx context.Context, tok *token.AccessToken) error {
	return s.Session.Open(ctx, tok)
}

// watchTokenFile restores the session on external writes to the token file.
func (s *SDK) watchTokenFile() {
	fc, ok := tokenstore.Unwrap(s.store).(*tokenfile.Cache)
	if !ok {
		s.logger.Warn("token cache watch requested but backend is not a file")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopWatch = cancel

	s.watchWG.Add(1)

	go func() {
		defer s.watchWG.Done()

		err := fc.Watch(ctx, s.logger, func() {
			if err := s.Session.Restore(ctx); err != nil {
				s.logger.Warn("reloading token file", slog.String("error", err.Error()))
			}
		})
		if err != nil {
			s.logger.Warn("token file watch stopped", slog.String("error", err.Error()))
		}
	}()
}

// Close drains the queue, stops watching, and closes the token cache.
// The persisted session is kept.
func (s *SDK) Close(ctx context.Context) error {
	var errs []error

	if err := s.Queue.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if s.stopWatch != nil {
		s.stopWatch()
		s.watchWG.Wait()
	}

	s.transport.CloseIdleConnections()

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("kakao: closing token cache: %w", err))
	}

	return errors.Join(errs...)
}
