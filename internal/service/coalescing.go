package service

import (
	"context"
	"sync"
	"time"
)

// inFlight is a single upstream call that several callers may wait on.
type inFlight[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// coalescer collapses concurrent calls for the same key into one execution of fn.
type coalescer[T any] struct {
	mu      sync.Mutex
	calls   map[string]*inFlight[T]
	timeout time.Duration
}

func newCoalescer[T any](timeout time.Duration) *coalescer[T] {
	return &coalescer[T]{
		calls:   make(map[string]*inFlight[T]),
		timeout: timeout,
	}
}

// Do runs fn once per key among concurrent callers. shared is true when the
// caller joined a call started by someone else. fn runs on a context detached
// from any single caller and bounded by the coalescer timeout, so one caller
// giving up does not fail the others. Each caller waits at most the timeout.
func (c *coalescer[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (result T, shared bool, err error) {
	c.mu.Lock()
	call, exists := c.calls[key]
	if !exists {
		call = &inFlight[T]{done: make(chan struct{})}
		c.calls[key] = call
		go c.run(ctx, key, call, fn)
	}
	c.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case <-call.done:
		return call.result, exists, call.err
	case <-waitCtx.Done():
		var zero T
		return zero, exists, waitCtx.Err()
	}
}

func (c *coalescer[T]) run(ctx context.Context, key string, call *inFlight[T], fn func(context.Context) (T, error)) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	call.result, call.err = fn(runCtx)

	c.mu.Lock()
	delete(c.calls, key)
	c.mu.Unlock()
	close(call.done)
}
