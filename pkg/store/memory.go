package store

import (
	"context"
	"sync"
	"time"

	"github.com/tablemind/tablemind/pkg/models"
)

// MemoryStore is a process-local session store with the same TTL semantics
// as the Redis backend. It backs tests and single-instance deployments
// without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	sess      *models.Session
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = &memoryEntry{
		sess:      sess.Clone(),
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	now := s.now()
	if !ok || now.After(entry.expiresAt) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}

	entry.sess.Touch(now)
	entry.expiresAt = now.Add(s.ttl)
	return entry.sess.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess.Touch(now)
	s.sessions[sess.ID] = &memoryEntry{
		sess:      sess.Clone(),
		expiresAt: now.Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok, nil
}

// Sweep drops expired entries and reports how many were evicted. The Redis
// backend needs no equivalent; its keys expire natively.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// SetClock overrides the time source. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
