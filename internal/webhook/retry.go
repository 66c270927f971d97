package webhook

import (
	"context"
	"errors"
	"time"
)

// retryPolicy bounds delivery attempts with a fixed inter-attempt delay.
// Only transport-level failures are retried; an HTTP error status is a
// delivered response and is recorded as-is.
type retryPolicy struct {
	maxAttempts int
	delay       time.Duration
}

func newRetryPolicy(maxAttempts int, delay time.Duration) retryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if delay <= 0 {
		delay = time.Second
	}
	return retryPolicy{maxAttempts: maxAttempts, delay: delay}
}

// ShouldRetry decides whether another attempt is warranted.
func (p retryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Wait blocks for the fixed delay or until the context ends.
func (p retryPolicy) Wait(ctx context.Context) error {
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
