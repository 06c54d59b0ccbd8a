package tokenfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	tempPattern   = ".token-*.tmp"
	tempPrefix    = ".token-"
	debounceDelay = 100 * time.Millisecond

	watchErrInitBackoff = time.Second
	watchErrMaxBackoff  = 30 * time.Second
)

// Watch calls onChange whenever the file at c.Path() is created, rewritten,
// or removed, until ctx is done. Bursts of events are coalesced. The parent
// directory is watched because atomic saves replace the file by rename.
func (c *Cache) Watch(ctx context.Context, logger *slog.Logger, onChange func()) error {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tokenfile: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("tokenfile: watching %s: %w", dir, err)
	}

	name := filepath.Base(c.path)
	errBackoff := watchErrInitBackoff

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}

			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			base := filepath.Base(ev.Name)
			if base != name || strings.HasPrefix(base, tempPrefix) {
				continue
			}

			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
			} else {
				debounce.Reset(debounceDelay)
			}

			fire = debounce.C
			errBackoff = watchErrInitBackoff

		case <-fire:
			fire = nil

			logger.Debug("token file changed", slog.String("path", c.path))
			onChange()

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("token file watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errBackoff):
			}

			errBackoff = min(errBackoff*2, watchErrMaxBackoff)
		}
	}
}
