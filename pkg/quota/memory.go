package quota

import (
	"context"
	"sync"
	"time"

	"github.com/tablemind/tablemind/pkg/config"
)

// MemoryAccountant is a process-local accountant with the same period
// semantics as the Redis backend.
type MemoryAccountant struct {
	mu     sync.Mutex
	used   map[string]int64 // keyed by usageKey
	limits map[string]int64 // per-user overrides
	cfg    *config.QuotaConfig
	now    func() time.Time
}

// NewMemoryAccountant creates an in-memory quota accountant.
func NewMemoryAccountant(cfg *config.QuotaConfig) *MemoryAccountant {
	return &MemoryAccountant{
		used:   make(map[string]int64),
		limits: make(map[string]int64),
		cfg:    cfg,
		now:    time.Now,
	}
}

func (a *MemoryAccountant) Check(ctx context.Context, userID string) (Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	used := a.used[usageKey(userID, now)]
	limit := a.limits[userID]
	if limit == 0 {
		limit = a.cfg.DefaultTokenLimit
	}
	return statusFor(used, limit, periodEnd(now)), nil
}

func (a *MemoryAccountant) Record(ctx context.Context, userID string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.used[usageKey(userID, a.now())] += tokens
	return nil
}

// SetLimit sets a per-user allowance override. Test helper.
func (a *MemoryAccountant) SetLimit(userID string, limit int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limits[userID] = limit
}

// SetClock overrides the time source. Test helper.
func (a *MemoryAccountant) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}
