package shared

import (
	"context"
	"errors"
	"time"
)

// RetryRead runs an idempotent read with bounded exponential backoff.
// Domain not-found results are returned immediately; only transport-level
// failures are retried. Writes must never go through this helper.
func RetryRead[T any](ctx context.Context, attempts int, baseDelay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
