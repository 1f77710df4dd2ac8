// Package retry runs an operation a bounded number of times with exponential backoff.
package retry

import (
	"context"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int           // total attempts including the first; < 1 means 1
	BaseDelay   time.Duration // delay before the second attempt, doubled after each failure
	MaxDelay    time.Duration // 0 means unbounded
}

// Do calls op until it succeeds, returns an error retryable rejects, or attempts run out.
// The last error is returned. Context cancellation stops the loop and returns ctx.Err().
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(Backoff(p, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// Backoff returns the delay after the given failed attempt (1-based).
func Backoff(p Policy, attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
