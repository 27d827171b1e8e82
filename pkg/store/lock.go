package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes the lock key only when the caller still owns it,
// so an expired-and-reacquired lock is never released by the old holder.
var releaseIfOwner = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisTurnLock is an advisory per-session lock held for the duration of a
// turn. The TTL bounds how long a crashed holder can wedge a session.
type RedisTurnLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTurnLock creates a Redis-backed turn lock.
func NewRedisTurnLock(client *redis.Client, ttl time.Duration) *RedisTurnLock {
	return &RedisTurnLock{client: client, ttl: ttl}
}

func (l *RedisTurnLock) Acquire(ctx context.Context, sessionID string) (func(context.Context), error) {
	key := lockKey(sessionID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire turn lock for %s: %w", sessionID, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	release := func(ctx context.Context) {
		// Best effort: the TTL reclaims the lock if this fails.
		_ = releaseIfOwner.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}

// MemoryTurnLock is the process-local counterpart for running without Redis.
type MemoryTurnLock struct {
	mu    sync.Mutex
	held  map[string]string
	ttl   time.Duration
	now   func() time.Time
	until map[string]time.Time
}

// NewMemoryTurnLock creates an in-memory turn lock.
func NewMemoryTurnLock(ttl time.Duration) *MemoryTurnLock {
	return &MemoryTurnLock{
		held:  make(map[string]string),
		until: make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (l *MemoryTurnLock) Acquire(ctx context.Context, sessionID string) (func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if _, ok := l.held[sessionID]; ok && now.Before(l.until[sessionID]) {
		return nil, ErrLocked
	}

	token := uuid.NewString()
	l.held[sessionID] = token
	l.until[sessionID] = now.Add(l.ttl)

	release := func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[sessionID] == token {
			delete(l.held, sessionID)
			delete(l.until, sessionID)
		}
	}
	return release, nil
}

func lockKey(sessionID string) string {
	return "lock:session:" + sessionID
}
