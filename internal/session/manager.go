package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codepair/internal/metrics"
	"codepair/internal/templates"
	"codepair/internal/websocket"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

const maxIDAttempts = 5

// Manager implements interfaces.SessionDirectory over a SessionStore and the
// participant registry.
type Manager struct {
	store    interfaces.SessionStore
	registry *websocket.Registry
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewManager creates a new session manager
func NewManager(store interfaces.SessionStore, registry *websocket.Registry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		registry: registry,
		logger:   logger,
		now:      time.Now,
		newID:    shortID,
	}
}

// shortID is the first group of a random UUID: 8 hex characters.
func shortID() string {
	id := uuid.NewString()
	return id[:strings.IndexByte(id, '-')]
}

// CreateSession creates a session seeded with the language's template and
// opens its empty participant list.
func (m *Manager) CreateSession(ctx context.Context, name, language string) (*types.Session, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if language == "" {
		return nil, fmt.Errorf("%w: language is required", ErrInvalidRequest)
	}

	session := &types.Session{
		Name:      name,
		Language:  language,
		Document:  templates.ForLanguage(language),
		CreatedAt: m.now().UTC(),
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		session.ID = m.newID()

		err := m.store.Create(ctx, session)
		if errors.Is(err, interfaces.ErrSessionExists) {
			m.logger.Debug("session id collision", zap.String("session_id", session.ID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}

		m.registry.Open(session.ID)
		metrics.SessionCreated()
		m.logger.Info("session created",
			zap.String("session_id", session.ID),
			zap.String("name", session.Name),
			zap.String("language", session.Language))
		return session.Clone(), nil
	}

	return nil, ErrIDExhausted
}

// GetSession returns the session plus a snapshot of its participants.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, []types.Participant, error) {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, m.registry.Participants(sessionID), nil
}

// Lookup returns the session record alone.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (*types.Session, error) {
	return m.store.Get(ctx, sessionID)
}

// UpdateSession applies the supplied fields. An empty update returns the
// current record unchanged.
func (m *Manager) UpdateSession(ctx context.Context, sessionID string, update types.SessionUpdate) (*types.Session, error) {
	if update.IsEmpty() {
		return m.store.Get(ctx, sessionID)
	}

	return m.store.Update(ctx, sessionID, func(session *types.Session) error {
		update.Apply(session)
		return nil
	})
}

// SetDocument replaces the session's document (last write wins).
func (m *Manager) SetDocument(ctx context.Context, sessionID, document string) (*types.Session, error) {
	return m.UpdateSession(ctx, sessionID, types.SessionUpdate{Document: &document})
}

// SetLanguage replaces the session's language.
func (m *Manager) SetLanguage(ctx context.Context, sessionID, language string) (*types.Session, error) {
	return m.UpdateSession(ctx, sessionID, types.SessionUpdate{Language: &language})
}

// ListParticipants returns the live participants of a session. Unknown ids
// yield an empty list, so connections joined to a nonexistent session are
// never reported.
func (m *Manager) ListParticipants(ctx context.Context, sessionID string) ([]types.Participant, error) {
	if _, err := m.store.Get(ctx, sessionID); err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return []types.Participant{}, nil
		}
		return nil, err
	}
	return m.registry.Participants(sessionID), nil
}

func (m *Manager) CountSessions(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}
