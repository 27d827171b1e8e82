package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablemind/tablemind/pkg/models"
	"github.com/tablemind/tablemind/pkg/store"
)

type countingSweeper struct {
	mu     sync.Mutex
	sweeps int
}

func (c *countingSweeper) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweeps++
	return 0
}

func (c *countingSweeper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweeps
}

func TestNewJanitorPanicsOnNilStore(t *testing.T) {
	assert.Panics(t, func() {
		NewJanitor(nil, time.Minute)
	})
}

func TestJanitorEvictsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemoryStore(5 * time.Minute)

	now := time.Now()
	clock := now
	sessions.SetClock(func() time.Time { return clock })

	require.NoError(t, sessions.Create(ctx, &models.Session{ID: "stale", UserID: "alice"}))
	require.NoError(t, sessions.Create(ctx, &models.Session{ID: "fresh", UserID: "alice"}))

	// Age only the stale session past its TTL by recreating fresh later.
	clock = now.Add(4 * time.Minute)
	require.NoError(t, sessions.Update(ctx, &models.Session{ID: "fresh", UserID: "alice"}))

	clock = now.Add(6 * time.Minute)
	j := NewJanitor(sessions, time.Minute)
	j.sweep()

	_, err := sessions.Get(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = sessions.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestJanitorPreservesLiveSessions(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemoryStore(5 * time.Minute)
	require.NoError(t, sessions.Create(ctx, &models.Session{ID: "live", UserID: "alice"}))

	j := NewJanitor(sessions, time.Minute)
	j.sweep()

	_, err := sessions.Get(ctx, "live")
	assert.NoError(t, err)
}

func TestJanitorStartStop(t *testing.T) {
	sweeper := &countingSweeper{}
	j := NewJanitor(sweeper, time.Hour)

	j.Start(context.Background())
	j.Start(context.Background()) // second start is a no-op
	j.Stop()

	// One immediate sweep runs before the first tick.
	assert.Equal(t, 1, sweeper.count())

	// Stop again must not block or panic.
	j.Stop()
}
