package store

import (
	"context"
	"sync"

	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// MemoryStore keeps sessions in a map for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	closed   bool
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*types.Session),
	}
}

func (m *MemoryStore) Create(ctx context.Context, session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, exists := m.sessions[session.ID]; exists {
		return interfaces.ErrSessionExists
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	session, exists := m.sessions[id]
	if !exists {
		return nil, interfaces.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Update runs mutate on a copy of the stored record while holding the write
// lock and stores the result only if mutate succeeds.
func (m *MemoryStore) Update(ctx context.Context, id string, mutate interfaces.MutateFunc) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	current, exists := m.sessions[id]
	if !exists {
		return nil, interfaces.ErrSessionNotFound
	}

	next, err := applyMutation(current, mutate)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.sessions), nil
}

func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.sessions = make(map[string]*types.Session)
	return nil
}

// applyMutation runs mutate against a copy of current. Identity fields are
// restored afterwards so no backend ever rewrites id, name or createdAt.
func applyMutation(current *types.Session, mutate interfaces.MutateFunc) (*types.Session, error) {
	next := current.Clone()
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}
	next.ID = current.ID
	next.Name = current.Name
	next.CreatedAt = current.CreatedAt
	return next, nil
}
