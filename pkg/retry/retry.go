package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "igtags/pkg/errors"
	"igtags/pkg/logger"
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of tries, at least one.
	Attempts int
	Backoff  Backoff
	// ShouldRetry decides whether a failure earns another try. Nil means
	// Retryable.
	ShouldRetry func(error) bool
	// OnAttempt sees the outcome of every try, including the last.
	OnAttempt func(n int, err error)
	Logger    logger.Logger
}

// Constant makes at most attempts tries with a fixed pause between them.
func Constant(attempts int, pause time.Duration) Policy {
	return Policy{Attempts: attempts, Backoff: Fixed(pause)}
}

// ExhaustedError is returned once every attempt has failed. It unwraps to
// the last failure so typed errors survive.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Retryable reports whether err is worth another try. Cancellation and
// typed errors whose type is permanent (auth, not_found, config) are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var typed *errs.Error
	if errors.As(err, &typed) {
		return errs.IsRetryable(typed.Type)
	}
	return true
}

// Do runs op until it succeeds, fails with an error the policy will not
// retry, or runs out of attempts. Nothing waits after the final attempt.
func Do(ctx context.Context, p Policy, op func(n int) error) error {
	_, err := Value(ctx, p, func(n int) (struct{}, error) {
		return struct{}{}, op(n)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(n int) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = Retryable
	}
	log := logger.OrGlobal(p.Logger)

	var zero T
	for n := 1; ; n++ {
		v, err := op(n)
		if p.OnAttempt != nil {
			p.OnAttempt(n, err)
		}
		if err == nil {
			if n > 1 {
				log.DebugWithFields("Succeeded after retry", map[string]interface{}{
					"attempt": n,
				})
			}
			return v, nil
		}

		if !shouldRetry(err) {
			return zero, err
		}
		if n >= attempts {
			return zero, &ExhaustedError{Attempts: n, Err: err}
		}

		var pause time.Duration
		if p.Backoff != nil {
			pause = p.Backoff.Delay(n)
		}
		log.WithError(err).DebugWithFields("Attempt failed, retrying", map[string]interface{}{
			"attempt":  n,
			"of":       attempts,
			"pause_ms": pause.Milliseconds(),
		})

		if err := Sleep(ctx, pause); err != nil {
			return zero, err
		}
	}
}
