// Package retry provides bounded retry policies for calls against the
// mail provider. Each operation picks its own policy: most use a fixed
// delay, account deletion uses a linear backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DelayFunc returns how long to wait before the given retry. attempt is
// 1 for the first retry.
type DelayFunc func(attempt int) time.Duration

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Delay computes the pause before each retry.
	Delay DelayFunc

	// Retryable decides whether an error is worth another try. A nil
	// Retryable retries every error.
	Retryable func(error) bool
}

// Fixed returns a policy of attempts tries separated by a constant delay.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Delay:       func(int) time.Duration { return delay },
	}
}

// Linear returns a policy whose delay grows as base × attempt.
func Linear(attempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Delay: func(attempt int) time.Duration {
			return base * time.Duration(attempt)
		},
	}
}

// WithRetryable returns a copy of p that only retries errors accepted by fn.
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

// WithDelay returns a copy of p using delay for every retry.
func (p Policy) WithDelay(delay DelayFunc) Policy {
	p.Delay = delay
	return p
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// stop marks an error that must not be retried regardless of policy.
type stop struct{ err error }

func (s stop) Error() string { return s.err.Error() }
func (s stop) Unwrap() error { return s.err }

// Stop wraps err so that Do returns it immediately.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return stop{err: err}
}

// Do runs fn until it succeeds, returns a non-retryable error, the policy
// is exhausted, or ctx is done. Non-retryable errors are returned as is;
// exhaustion wraps the last error in an *ExhaustedError.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		var s stop
		if errors.As(err, &s) {
			return s.err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		var wait time.Duration
		if p.Delay != nil {
			wait = p.Delay(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
