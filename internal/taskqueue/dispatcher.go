package taskqueue

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher delivers completion callbacks. Dispatch must not block the
// worker for longer than it takes to hand fn off.
type Dispatcher interface {
	Dispatch(fn func())
	Close()
}

// InlineDispatcher runs callbacks directly on the worker goroutine.
type InlineDispatcher struct{}

func (InlineDispatcher) Dispatch(fn func()) { safeCall(slog.Default(), fn) }
func (InlineDispatcher) Close()             {}

// Loop delivers callbacks one at a time, in completion order, on whichever
// goroutine runs it. NewSerialDispatcher runs it on a goroutine it owns;
// NewLoopDispatcher leaves it to the caller, who calls Run from the
// goroutine that should observe callbacks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	notify chan struct{}
	done   chan struct{}
	owned  bool
	logger *slog.Logger
}

// NewSerialDispatcher returns a Loop running on its own goroutine.
func NewSerialDispatcher(logger *slog.Logger) *Loop {
	l := newLoop(logger)
	l.owned = true

	go func() {
		_ = l.Run(context.Background())
	}()

	return l
}

// NewLoopDispatcher returns a Loop the caller must drive with Run.
func NewLoopDispatcher(logger *slog.Logger) *Loop {
	return newLoop(logger)
}

func newLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Dispatch enqueues fn. After Close, fn runs inline so no callback is lost.
func (l *Loop) Dispatch(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.call(fn)

		return
	}

	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	l.wake()
}

// Run delivers callbacks until the loop is closed and drained, or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.finish()

	for {
		fn, closed := l.next()
		if fn != nil {
			l.call(fn)
			continue
		}

		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
		}
	}
}

// Close stops accepting queued callbacks. Callbacks already queued are
// still delivered. For a serial dispatcher Close waits until they are.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.wake()

	if l.owned {
		<-l.done
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, l.closed
	}

	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]

	return fn, false
}

func (l *Loop) wake() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *Loop) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

func (l *Loop) call(fn func()) {
	safeCall(l.logger, fn)
}

// safeCall runs fn, containing any panic so one bad callback cannot stop
// delivery of the rest.
func safeCall(logger *slog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("taskqueue: panic in callback", slog.Any("panic", r))
		}
	}()

	fn()
}
