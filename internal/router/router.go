package router

import (
	"encoding/json"
	"fmt"
	"time"

	"codepair/pkg/types"
)

// Event is a decoded inbound frame. Payload is one of *types.JoinSession,
// *types.CodeChange or *types.LanguageChange, matching Type.
type Event struct {
	Type    string
	Payload interface{}
}

// SessionID returns the session the event targets.
func (e Event) SessionID() string {
	switch p := e.Payload.(type) {
	case *types.JoinSession:
		return p.SessionID
	case *types.CodeChange:
		return p.SessionID
	case *types.LanguageChange:
		return p.SessionID
	}
	return ""
}

type validator interface {
	Validate() error
}

// envelope keeps data raw until the type is known.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Router turns raw client frames into validated events.
type Router struct {
	limiter *RateLimiter
}

// NewRouter creates a router. eventsPerMinute <= 0 disables rate limiting.
func NewRouter(eventsPerMinute int) *Router {
	r := &Router{}
	if eventsPerMinute > 0 {
		r.limiter = NewRateLimiter(eventsPerMinute, time.Minute)
	}
	return r
}

// Route applies the connection's rate limit and decodes the frame.
func (r *Router) Route(connectionID string, payload []byte) (Event, error) {
	if r.limiter != nil && !r.limiter.Allow(connectionID) {
		return Event{}, ErrRateLimitExceeded
	}
	return Decode(payload)
}

// Forget releases per-connection state once the connection is gone.
func (r *Router) Forget(connectionID string) {
	if r.limiter != nil {
		r.limiter.Forget(connectionID)
	}
}

// Cleanup prunes idle rate limiter entries.
func (r *Router) Cleanup() {
	if r.limiter != nil {
		r.limiter.Cleanup()
	}
}

// Decode parses a {type, data} frame into its typed variant and validates
// the required fields.
func Decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var target validator
	switch env.Type {
	case types.EventJoinSession:
		target = &types.JoinSession{}
	case types.EventCodeChange:
		target = &types.CodeChange{}
	case types.EventLanguageChange:
		target = &types.LanguageChange{}
	case "":
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	default:
		return Event{Type: env.Type}, fmt.Errorf("%w: %s", ErrUnknownEventType, env.Type)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return Event{Type: env.Type}, fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return Event{Type: env.Type}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := target.Validate(); err != nil {
		return Event{Type: env.Type}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return Event{Type: env.Type, Payload: target}, nil
}
