package types

import (
	"time"
)

// Realtime event names shared by clients and the hub.
const (
	// Client -> server
	EventJoinSession    = "join-session"
	EventCodeChange     = "code-change"
	EventLanguageChange = "language-change"

	// Server -> client
	EventConnected   = "connected"
	EventCodeUpdate  = "code-update"
	EventUsersUpdate = "users-update"
	EventError       = "error"
)

// Session is a named, language-tagged shared document.
// ID, Name and CreatedAt never change after creation; Language and Document
// are last-write-wins.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Language  string    `json:"language"`
	Document  string    `json:"document"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a copy that can be handed out without sharing the stored record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Participant is one live connection joined to a session.
type Participant struct {
	ConnectionID string    `json:"connectionId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// SessionUpdate is a partial update; nil fields are left untouched.
type SessionUpdate struct {
	Document *string `json:"document,omitempty"`
	Language *string `json:"language,omitempty"`
}

// IsEmpty reports whether the update carries no fields.
func (u SessionUpdate) IsEmpty() bool {
	return u.Document == nil && u.Language == nil
}

// Apply copies the supplied fields onto s.
func (u SessionUpdate) Apply(s *Session) {
	if u.Document != nil {
		s.Document = *u.Document
	}
	if u.Language != nil {
		s.Language = *u.Language
	}
}

// Frame is the envelope for every realtime message in both directions.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Inbound event payloads. Pointer fields distinguish "absent" from "empty".

type JoinSession struct {
	SessionID string `json:"sessionId"`
}

type CodeChange struct {
	SessionID string  `json:"sessionId"`
	Document  *string `json:"document"`
}

type LanguageChange struct {
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
}

// Outbound event payloads.

type Connected struct {
	ConnectionID string `json:"connectionId"`
}

type CodeUpdate struct {
	Document           string `json:"document"`
	OriginConnectionID string `json:"originConnectionId,omitempty"`
}

type LanguageUpdate struct {
	Language string `json:"language"`
}

type UsersUpdate struct {
	Users []Participant `json:"users"`
}

type ErrorNotice struct {
	Message string `json:"message"`
}
