package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter replenishing at a fixed per-minute
// rate with a bucket depth of one. It paces sustained request streams; it
// is not a substitute for reacting to provider-reported throttling.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	tokens   float64
	lastTime time.Time
}

// NewRateLimiter returns a limiter allowing perMinute operations per
// minute. perMinute <= 0 yields a limiter that never blocks.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{lastTime: time.Now()}
	if perMinute > 0 {
		rl.rate = float64(perMinute) / 60.0
	}
	rl.tokens = 1
	return rl
}

// Wait blocks until a token is available or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		if rl.rate == 0 {
			rl.mu.Unlock()
			return nil
		}
		now := time.Now()
		rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
		if rl.tokens > 1 {
			rl.tokens = 1
		}
		rl.lastTime = now
		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
