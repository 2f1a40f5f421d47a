package api

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket per host. A nil *RateLimiter, or one with a
// non-positive rate, never waits.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rps      float64
	burst    int
}

// NewRateLimiter allows rps requests per second per host with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil || rl.rps <= 0 {
		return nil
	}
	return rl.limiterFor(host).Wait(ctx)
}

func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
	rl.limiters[host] = l
	return l
}
