package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// interruptContext returns a context canceled by the first SIGINT or
// SIGTERM. A second signal exits the process, even while the SDK is still
// draining its queue. release stops signal handling and must be called once
// the command is done.
func interruptContext(parent context.Context, logger *slog.Logger) (ctx context.Context, release func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		interrupted := false

		for {
			select {
			case sig := <-sigCh:
				if interrupted {
					logger.Warn("second interrupt, exiting", slog.String("signal", sig.String()))
					os.Exit(exitError)
				}

				interrupted = true

				logger.Info("interrupted, abandoning pending requests", slog.String("signal", sig.String()))
				cancel()
			case <-done:
				return
			}
		}
	}()

	release = sync.OnceFunc(func() {
		signal.Stop(sigCh)
		close(done)
		cancel()
	})

	return ctx, release
}
