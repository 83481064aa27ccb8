package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop/patientsync/pkg/common/logger"
)

// RateLimiter enforces a fixed-window per-minute budget on top of the cache
// backend. A backend failure fails open: throttling is a cost control, not a
// correctness guarantee, and must never take the service down with the cache.
type RateLimiter struct {
	backend Backend
	scope   string
	limit   int
	now     func() time.Time
}

func NewRateLimiter(backend Backend, scope string, perMinute int) *RateLimiter {
	return &RateLimiter{
		backend: backend,
		scope:   scope,
		limit:   perMinute,
		now:     time.Now,
	}
}

func (l *RateLimiter) Allow(ctx context.Context) bool {
	if l.limit <= 0 {
		return true
	}
	window := l.now().Unix() / 60
	key := fmt.Sprintf("%s:calls:%d", l.scope, window)

	count, err := l.backend.Incr(ctx, key, 2*time.Minute)
	if err != nil {
		logger.Log.WithError(err).Warn("rate limit counter unavailable, allowing request")
		return true
	}
	return count <= int64(l.limit)
}
