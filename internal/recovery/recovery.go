// Package recovery retries a failing startup step on a Fibonacci schedule.
package recovery

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned by Run when every scheduled attempt failed.
var ErrExhausted = errors.New("recovery attempts exhausted")

// AttemptFunc performs one attempt. Returns nil once recovered.
type AttemptFunc func(ctx context.Context) error

// Run waits out each delay of the Fibonacci schedule from initial up to max and
// calls attempt after every delay, bounding each call by attemptTimeout.
// It returns nil on the first successful attempt, ctx.Err() when cancelled, and an
// error wrapping ErrExhausted and the last attempt error after the final attempt fails.
// onFailure, when set, is called after every failed attempt.
func Run(ctx context.Context, attempt AttemptFunc, initial, max, attemptTimeout time.Duration, onFailure func(n int, next time.Duration, err error)) error {
	delays := fibDelays(initial, max)
	if len(delays) == 0 {
		return ErrExhausted
	}
	var lastErr error
	for i, d := range delays {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		lastErr = attempt(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if onFailure != nil {
			var next time.Duration
			if i+1 < len(delays) {
				next = delays[i+1]
			}
			onFailure(i+1, next, lastErr)
		}
	}
	return errors.Join(ErrExhausted, lastErr)
}

// fibDelays returns initial×(1, 2, 3, 5, 8, ...) while below max, then max itself.
// Returns nil when initial is not positive or max is below initial.
func fibDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 || max < initial {
		return nil
	}
	var out []time.Duration
	a, b := time.Duration(1), time.Duration(2)
	for {
		d := a * initial
		if d >= max {
			break
		}
		out = append(out, d)
		a, b = b, a+b
	}
	return append(out, max)
}
