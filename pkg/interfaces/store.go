package interfaces

import (
	"context"

	"codepair/pkg/types"
)

// MutateFunc edits a session record in place. Returning an error aborts the
// update and leaves the stored record unchanged.
type MutateFunc func(session *types.Session) error

// SessionStore holds the authoritative session records.
type SessionStore interface {
	// Create stores a new session. Returns ErrSessionExists if the id is taken.
	Create(ctx context.Context, session *types.Session) error

	// Get returns a copy of the session or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*types.Session, error)

	// Update runs mutate against the latest stored record and persists the
	// result atomically. Concurrent updates to the same id never interleave.
	Update(ctx context.Context, sessionID string, mutate MutateFunc) (*types.Session, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
