// Package cleanup evicts expired sessions from the in-memory store.
//
// The Redis backend expires session keys natively; the memory backend only
// drops an expired entry when that entry is next accessed. The janitor keeps
// an idle memory-mode process from holding dead conversations indefinitely.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops expired entries and reports how many were evicted.
type Sweeper interface {
	Sweep() int
}

// Janitor periodically sweeps a memory-backed session store. All operations
// are idempotent; running it against an already-clean store is a no-op.
type Janitor struct {
	store    Sweeper
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor creates a janitor sweeping store every interval.
func NewJanitor(store Sweeper, interval time.Duration) *Janitor {
	if store == nil {
		panic("NewJanitor: store must not be nil")
	}
	return &Janitor{
		store:    store,
		interval: interval,
	}
}

// Start launches the background sweep loop.
func (j *Janitor) Start(ctx context.Context) {
	if j.cancel != nil {
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})

	go j.run(ctx)

	slog.Info("Session janitor started", "interval", j.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	slog.Info("Session janitor stopped")
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.done)

	j.sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	if count := j.store.Sweep(); count > 0 {
		slog.Info("Evicted expired sessions", "count", count)
	}
}
