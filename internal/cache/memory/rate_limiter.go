package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// RateLimiter implements domain.RateLimiter with one token bucket per key.
// A limit of n per window refills at n/window with a burst of n.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

// Allow reports whether one more request for key fits within limit requests
// per window.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, domain.ErrInvalidInput
	}
	rl.mu.Lock()
	lim, ok := rl.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		rl.buckets[key] = lim
	}
	rl.mu.Unlock()
	return lim.AllowN(rl.now(), 1), nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
