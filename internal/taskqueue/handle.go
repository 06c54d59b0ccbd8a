package taskqueue

import (
	"context"
	"sync/atomic"
)

// Status is a task's lifecycle state.
type Status int32

const (
	StatusQueued Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusDropped
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusDropped
}

// Handle tracks one submitted task. Done is closed after the task's
// callback has returned.
type Handle[T any] struct {
	id     string
	status atomic.Int32
	done   chan struct{}
	val    T
	err    error
}

func newHandle[T any](id string) *Handle[T] {
	return &Handle[T]{id: id, done: make(chan struct{})}
}

// ID is the task's unique identifier.
func (h *Handle[T]) ID() string { return h.id }

func (h *Handle[T]) Status() Status { return Status(h.status.Load()) }

func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Wait blocks until the task completes and returns its result. The error
// is nil or an *apierr.Error. If ctx ends first, Wait returns ctx.Err()
// and the task keeps running.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.val, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (h *Handle[T]) setStatus(s Status) {
	h.status.Store(int32(s))
}
