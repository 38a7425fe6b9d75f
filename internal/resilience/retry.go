// Package resilience provides the composable failure policies wrapped around
// channel sender calls: retry with exponential backoff and a circuit breaker.
// Each policy is independently constructed and testable.
package resilience

import (
	"context"
	"time"
)

// Retrier re-invokes a failed operation up to MaxRetries additional times with
// exponentially growing delays, returning the last error after exhaustion.
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Retryable decides which errors are worth another attempt.
	// A nil predicate retries everything.
	Retryable func(error) bool
}

// Do runs op, retrying per the policy. The backoff wait is context-aware:
// cancellation during a wait returns ctx.Err() immediately.
func (r *Retrier) Do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			return lastErr
		}
		if attempt >= r.MaxRetries {
			return lastErr
		}
		if err := Sleep(ctx, Backoff(r.BaseDelay, r.MaxDelay, attempt)); err != nil {
			return err
		}
	}
}

// Backoff computes min(base * 2^attempt, max).
func Backoff(base, max time.Duration, attempt int) time.Duration {
	d := base << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// Sleep waits for d or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
