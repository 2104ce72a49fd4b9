package core

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of transient errors.
type RetryPolicy struct {
	// Attempts is the total number of tries (default 3).
	Attempts int
	// BaseBackoff is the delay before the first retry; it doubles per retry
	// (default 100ms).
	BaseBackoff time.Duration
}

// DefaultRetryPolicy returns the standard policy for upstream calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:    3,
		BaseBackoff: 100 * time.Millisecond,
	}
}

// Retry runs fn, retrying transient errors with exponential backoff.
// Non-transient errors and context cancellation return immediately. After
// the final attempt the last error escalates unchanged (the caller treats it
// as fatal).
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := policy.BaseBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if Classify(err) != ClassTransient || ctx.Err() != nil {
			return zero, err
		}
	}

	return zero, lastErr
}
