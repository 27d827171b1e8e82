// Package store persists sessions between HTTP exchanges. The reference
// backend is Redis with native TTL; an in-memory backend exists for tests
// and for running without Redis.
package store

import (
	"context"
	"errors"

	"github.com/tablemind/tablemind/pkg/models"
)

// ErrNotFound is returned when a session does not exist or its TTL expired.
var ErrNotFound = errors.New("session not found")

// ErrLocked is returned when a session's turn lock is held by another
// connection.
var ErrLocked = errors.New("session lock held")

// SessionStore maps session ids to sessions. Every successful access
// refreshes the TTL: inactivity is measured from the last protocol
// exchange, not from creation.
type SessionStore interface {
	// Create persists a new session with a fresh TTL.
	Create(ctx context.Context, sess *models.Session) error

	// Get loads a session, refreshes its TTL, and updates last_activity.
	// Returns ErrNotFound when the session is absent or expired.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Update persists the given snapshot and refreshes the TTL. The
	// protocol guarantees one writer per session, so this is a plain put.
	Update(ctx context.Context, sess *models.Session) error

	// Delete removes a session. The bool reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
}

// TurnLocker grants short-lived exclusive turn execution for a session,
// defending against duplicate client connections. The returned release
// function is safe to call once; the lock also self-expires.
type TurnLocker interface {
	// Acquire takes the session's turn lock. Returns ErrLocked when another
	// holder is active.
	Acquire(ctx context.Context, sessionID string) (release func(context.Context), err error)
}

func sessionKey(id string) string {
	return "session:" + id
}
