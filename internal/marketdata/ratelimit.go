package marketdata

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between calls sharing one upstream
// API identity.
//
// The read-last-time / sleep / update-last-time sequence runs under a single
// mutex, which intentionally serializes all callers of the same identity;
// that serialization is the rate limit.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	lastCall time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter with the given minimum inter-call interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until the minimum interval since the last dispatched call has
// elapsed, then records the new dispatch time. The timestamp is updated on
// every acquisition, so failed calls still consume pacing budget.
func (l *RateLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.interval > 0 && !l.lastCall.IsZero() {
		if wait := l.interval - l.now().Sub(l.lastCall); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	l.lastCall = l.now()
	return nil
}

// Interval returns the configured minimum interval.
func (l *RateLimiter) Interval() time.Duration {
	return l.interval
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LimiterRegistry manages one RateLimiter per API identity.
type LimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*RateLimiter
}

// NewLimiterRegistry creates an empty registry.
func NewLimiterRegistry() *LimiterRegistry {
	return &LimiterRegistry{limiters: make(map[string]*RateLimiter)}
}

// Get returns or creates the limiter for the given identity.
func (r *LimiterRegistry) Get(identity string, interval time.Duration) *RateLimiter {
	r.mu.RLock()
	if l, ok := r.limiters[identity]; ok {
		r.mu.RUnlock()
		return l
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := r.limiters[identity]; ok {
		return l
	}

	l := NewRateLimiter(interval)
	r.limiters[identity] = l
	return l
}
