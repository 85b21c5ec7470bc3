package util

import (
	"context"
	"time"
)

// Retry runs fn up to maxAttempts times, doubling the delay between
// attempts starting from baseDelay. The first nil return wins; otherwise
// the last error is returned. Cancelling the context aborts the wait
// between attempts.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	delay := baseDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= maxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// Sleep waits for d or until the context is cancelled, whichever comes
// first. Returns the context error if cancelled. Zero and negative
// durations return immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
