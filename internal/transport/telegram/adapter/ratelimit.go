package adapter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing Bot API calls and honours flood-wait pauses
// reported by Telegram.
type RateLimiter struct {
	limiter *rate.Limiter

	mu             sync.Mutex
	floodWaitUntil time.Time
}

// NewRateLimiter allows rps requests per second with the given burst.
// rps <= 0 disables pacing (flood waits still apply).
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	lim := rate.Inf
	if rps > 0 {
		lim = rate.Limit(rps)
	}
	return &RateLimiter{limiter: rate.NewLimiter(lim, burst)}
}

// Wait blocks until the next request is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	until := r.floodWaitUntil
	r.mu.Unlock()

	if d := time.Until(until); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return r.limiter.Wait(ctx)
}

// SetFloodWait holds every caller for d. A shorter wait never shortens an
// active one.
func (r *RateLimiter) SetFloodWait(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if until := time.Now().Add(d); until.After(r.floodWaitUntil) {
		r.floodWaitUntil = until
	}
}

// FloodWaitRemaining reports how long callers are still held.
func (r *RateLimiter) FloodWaitRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := time.Until(r.floodWaitUntil); d > 0 {
		return d
	}
	return 0
}
