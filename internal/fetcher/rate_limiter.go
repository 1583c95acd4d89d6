package fetcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per host. It is shared by every
// target in a run so parallel targets on the same site still respect the
// configured request rate.
type RateLimiter struct {
	rpm   int
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rpm:      rpm,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	return rl.limiterFor(host).Wait(ctx)
}

func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[host]
	if !exists {
		limit := rate.Inf
		if rl.rpm > 0 {
			limit = rate.Every(time.Minute / time.Duration(rl.rpm))
		}
		limiter = rate.NewLimiter(limit, rl.burst)
		rl.limiters[host] = limiter
	}
	return limiter
}
