package crawl

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter bounds fetch QPS per docset using token buckets with a
// burst of 1: the check-and-update of the next allowed fetch time is
// atomic inside the limiter, so the limit holds regardless of worker
// concurrency.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	delay    time.Duration
}

// NewHostLimiter creates a limiter enforcing at most one request per
// delay per docset. A non-positive delay disables limiting.
func NewHostLimiter(delay time.Duration) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
	}
}

// Wait blocks until the docset's rate limit admits a request, or the
// context is canceled.
func (l *HostLimiter) Wait(ctx context.Context, docsetID string) error {
	if l.delay <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	limiter, ok := l.limiters[docsetID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.delay), 1)
		l.limiters[docsetID] = limiter
	}
	l.mu.Unlock()

	return limiter.Wait(ctx)
}

// Forget drops the limiter state for a docset.
func (l *HostLimiter) Forget(docsetID string) {
	l.mu.Lock()
	delete(l.limiters, docsetID)
	l.mu.Unlock()
}
