package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/tablemind/tablemind/pkg/config"
)

// MemoryLimiter is a process-local sliding-window limiter with the same
// decision semantics as the Redis backend.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	cfg     *config.RateLimitConfig
	now     func() time.Time
}

// NewMemoryLimiter creates an in-memory sliding-window limiter.
func NewMemoryLimiter(cfg *config.RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Check(ctx context.Context, endpoint, clientKey string) (Decision, error) {
	limit := l.cfg.EndpointLimit(endpoint)
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := windowKey(endpoint, clientKey)
	now := l.now()
	windowStart := now.Add(-l.cfg.Window)

	kept := l.windows[key][:0]
	for _, at := range l.windows[key] {
		if at.After(windowStart) {
			kept = append(kept, at)
		}
	}
	l.windows[key] = kept

	decision := Decision{Limit: limit}
	if len(kept) > 0 {
		decision.ResetIn = kept[0].Add(l.cfg.Window).Sub(now)
	}

	if len(kept) >= limit {
		return decision, nil
	}

	l.windows[key] = append(kept, now)
	decision.Allowed = true
	decision.Remaining = limit - len(kept) - 1
	if len(kept) == 0 {
		decision.ResetIn = l.cfg.Window
	}
	return decision, nil
}

// SetClock overrides the time source. Test helper.
func (l *MemoryLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
