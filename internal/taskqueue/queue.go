// Package taskqueue runs API operations on background workers and hands
// each result to a callback exactly once, and to a Handle that can be
// waited on.
package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tonimelisma/kakao-go/internal/apierr"
)

// Defaults used when options are not given.
const (
	DefaultWorkers  = 1
	DefaultCapacity = 256
)

const tracerName = "github.com/tonimelisma/kakao-go/internal/taskqueue"

// Operation is the unit of work. It runs on a worker goroutine.
type Operation[T any] func(ctx context.Context) (T, error)

// Callback receives the operation's result. err is nil or an *apierr.Error.
type Callback[T any] func(value T, err error)

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of worker goroutines. With one worker,
// operations run in submission order.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithCapacity bounds the number of queued, not yet started tasks.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithDispatcher sets how callbacks are delivered. The queue closes the
// dispatcher on Shutdown.
func WithDispatcher(d Dispatcher) Option {
	return func(q *Queue) { q.dispatcher = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(q *Queue) { q.tracer = tp.Tracer(tracerName) }
}

// Stats counts task outcomes since the queue started.
type Stats struct {
	Submitted int64
	Succeeded int64
	Failed    int64
	Dropped   int64
	Rejected  int64
}

// Queue is a fixed pool of workers reading a bounded FIFO of tasks.
type Queue struct {
	workers    int
	capacity   int
	dispatcher Dispatcher
	logger     *slog.Logger
	tracer     trace.Tracer

	jobs     chan job
	mu       sync.RWMutex
	closed   bool
	draining atomic.Bool
	wg       sync.WaitGroup
	stopOnce sync.Once

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	rejected  atomic.Int64
}

type job interface {
	run(ctx context.Context)
	drop()
}

// New creates a queue and starts its workers. Without WithDispatcher,
// callbacks are delivered serially on a dedicated goroutine.
func New(opts ...Option) *Queue {
	q := &Queue{
		workers:  DefaultWorkers,
		capacity: DefaultCapacity,
	}

	for _, o := range opts {
		o(q)
	}

	if q.logger == nil {
		q.logger = slog.Default()
	}

	if q.tracer == nil {
		q.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}

	if q.dispatcher == nil {
		q.dispatcher = NewSerialDispatcher(q.logger)
	}

	q.jobs = make(chan job, q.capacity)

	for range q.workers {
		q.wg.Add(1)

		go q.worker()
	}

	q.logger.Debug("task queue started",
		slog.Int("workers", q.workers),
		slog.Int("capacity", q.capacity),
	)

	return q
}

// Submit enqueues op. The returned error is non-nil only when the task was
// not accepted (queue shut down or full); in that case cb is never called.
// Otherwise cb, if non-nil, is called exactly once.
func Submit[T any](q *Queue, op Operation[T], cb Callback[T]) (*Handle[T], error) {
	if op == nil {
		return nil, apierr.Parameter("taskqueue: nil operation")
	}

	t := &task[T]{
		q:      q,
		op:     op,
		cb:     cb,
		handle: newHandle[T](uuid.NewString()),
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.rejected.Add(1)
		return nil, apierr.Rejected("taskqueue: queue is shut down")
	}

	select {
	case q.jobs <- t:
		q.submitted.Add(1)
		return t.handle, nil
	default:
		q.rejected.Add(1)
		return nil, apierr.Rejected(fmt.Sprintf("taskqueue: queue is full (%d tasks)", q.capacity))
	}
}

// Stats returns a snapshot of the outcome counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.submitted.Load(),
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		Rejected:  q.rejected.Load(),
	}
}

// Shutdown stops accepting tasks, drops tasks that have not started, and
// waits for running tasks to finish and all callbacks to be delivered.
// Dropped tasks get a rejection error through their callback. If ctx ends
// first Shutdown returns ctx.Err(); workers still finish in the background.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.draining.Store(true)
		close(q.jobs)
		q.mu.Unlock()
	})

	finished := make(chan struct{})

	go func() {
		q.wg.Wait()
		q.dispatcher.Close()
		close(finished)
	}()

	select {
	case <-finished:
		st := q.Stats()
		q.logger.Debug("task queue stopped",
			slog.Int64("succeeded", st.Succeeded),
			slog.Int64("failed", st.Failed),
			slog.Int64("dropped", st.Dropped),
		)

		return nil
	case <-ctx.Done():
		return fmt.Errorf("taskqueue: shutdown: %w", ctx.Err())
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for j := range q.jobs {
		if q.draining.Load() {
			j.drop()
			continue
		}

		j.run(context.Background())
	}
}

type task[T any] struct {
	q      *Queue
	op     Operation[T]
	cb     Callback[T]
	handle *Handle[T]
}

func (t *task[T]) run(ctx context.Context) {
	h := t.handle
	h.setStatus(StatusRunning)

	ctx, span := t.q.tracer.Start(ctx, "taskqueue.task",
		trace.WithAttributes(attribute.String("task.id", h.id)),
	)

	val, err := t.safeOp(ctx)

	var ae *apierr.Error
	if err != nil {
		ae = apierr.Normalize(err)
		span.RecordError(ae)
		span.SetStatus(codes.Error, ae.Kind.String())
		t.q.failed.Add(1)
	} else {
		t.q.succeeded.Add(1)
	}

	span.End()

	t.complete(val, ae)
}

func (t *task[T]) drop() {
	t.q.dropped.Add(1)

	var zero T

	t.handle.setStatus(StatusDropped)
	t.deliver(zero, apierr.Rejected("taskqueue: task dropped at shutdown"))
}

// safeOp runs the operation, turning a panic into a transport error.
func (t *task[T]) safeOp(ctx context.Context) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.q.logger.Error("taskqueue: panic in operation",
				slog.String("task_id", t.handle.id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)

			var zero T
			val, err = zero, apierr.Transport(fmt.Errorf("taskqueue: operation panicked: %v", r))
		}
	}()

	return t.op(ctx)
}

func (t *task[T]) complete(val T, ae *apierr.Error) {
	if ae != nil {
		t.handle.setStatus(StatusFailed)
		t.deliver(val, ae)

		return
	}

	t.handle.setStatus(StatusSucceeded)
	t.deliver(val, nil)
}

// deliver records the result on the handle and hands the callback to the
// dispatcher. The handle completes only after the callback returns.
func (t *task[T]) deliver(val T, ae *apierr.Error) {
	h := t.handle
	h.val = val

	if ae != nil {
		h.err = ae
	}

	cb := t.cb

	t.q.dispatcher.Dispatch(func() {
		defer close(h.done)

		if cb != nil {
			cb(h.val, h.err)
		}
	})
}
