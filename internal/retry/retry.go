// Package retry runs an operation under a fixed-backoff, bounded-attempt policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 200 * time.Millisecond
)

// Policy bounds a retry loop. MaxAttempts counts every attempt, including the first.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy returns the 3 attempt / 200ms policy.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
}

// Validate rejects policies that would never run the operation.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.Backoff < 0 {
		return fmt.Errorf("retry: backoff must not be negative, got %s", p.Backoff)
	}
	return nil
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Operation is one attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Result is the outcome of Do. Err is the error of the last attempt exactly as
// the operation returned it (after removing a Stop marker), or nil.
type Result struct {
	Attempts int
	Err      error
}

type stopError struct{ err error }

func (s *stopError) Error() string { return s.err.Error() }
func (s *stopError) Unwrap() error { return s.err }

// Stop marks err as not worth retrying; Do returns it immediately.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Do runs op until it succeeds, returns a Stop error, or the policy is
// exhausted. Between failed attempts it sleeps p.Backoff using sleep (Sleep
// when nil). If ctx ends during a backoff, the last attempt's error is
// returned joined with the context error.
func Do(ctx context.Context, p Policy, sleep Sleeper, op Operation) Result {
	if sleep == nil {
		sleep = Sleep
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var res Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		err := op(ctx, attempt)
		if err == nil {
			res.Err = nil
			return res
		}

		var stop *stopError
		if errors.As(err, &stop) {
			res.Err = stop.err
			return res
		}
		res.Err = err

		if attempt == maxAttempts {
			break
		}
		if serr := sleep(ctx, p.Backoff); serr != nil {
			res.Err = errors.Join(err, serr)
			return res
		}
	}
	return res
}
