package interfaces

import (
	"context"

	"codepair/pkg/types"
)

// SessionDirectory is the request/response view over sessions and their
// participants.
type SessionDirectory interface {
	CreateSession(ctx context.Context, name, language string) (*types.Session, error)
	GetSession(ctx context.Context, sessionID string) (*types.Session, []types.Participant, error)
	UpdateSession(ctx context.Context, sessionID string, update types.SessionUpdate) (*types.Session, error)
	ListParticipants(ctx context.Context, sessionID string) ([]types.Participant, error)
	CountSessions(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error
}
