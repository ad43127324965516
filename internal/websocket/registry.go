package websocket

import (
	"sync"
	"time"

	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// Registry tracks live connections and, per session, the ordered list of
// joined participants. The member list doubles as the broadcast room so the
// two views cannot drift.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection // connectionID -> Connection
	rooms       map[string]*room                 // sessionID -> room
	memberships map[string]string                // connectionID -> sessionID
}

type room struct {
	members []member
	opened  bool // created alongside a session rather than by a join
}

type member struct {
	conn        interfaces.Connection
	participant types.Participant
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		rooms:       make(map[string]*room),
		memberships: make(map[string]string),
	}
}

// Register starts tracking a live connection.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister stops tracking conn. It does not leave the room; the hub does
// that when it processes the disconnect.
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if registered, exists := r.connections[conn.ID()]; exists && registered == conn {
		delete(r.connections, conn.ID())
	}
}

// Open creates the empty participant list for a newly created session.
func (r *Registry) Open(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, exists := r.rooms[sessionID]; exists {
		rm.opened = true
		return
	}
	r.rooms[sessionID] = &room{opened: true}
}

// Join appends conn to the session's participant list and records the
// membership on the connection.
func (r *Registry) Join(conn interfaces.Connection, sessionID string, joinedAt time.Time) (types.Participant, error) {
	if conn == nil {
		return types.Participant{}, ErrNilConnection
	}
	if sessionID == "" {
		return types.Participant{}, ErrEmptySession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, joined := r.memberships[conn.ID()]; joined {
		return types.Participant{}, ErrAlreadyJoined
	}

	rm, exists := r.rooms[sessionID]
	if !exists {
		rm = &room{}
		r.rooms[sessionID] = rm
	}

	p := types.Participant{ConnectionID: conn.ID(), JoinedAt: joinedAt.UTC()}
	rm.members = append(rm.members, member{conn: conn, participant: p})
	r.memberships[conn.ID()] = sessionID
	conn.SetSessionID(sessionID)

	return p, nil
}

// Leave removes conn from whatever session it joined and returns that
// session id. A room that was never opened is dropped once empty.
func (r *Registry) Leave(conn interfaces.Connection) (string, bool) {
	if conn == nil {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, joined := r.memberships[conn.ID()]
	if !joined {
		return "", false
	}
	delete(r.memberships, conn.ID())
	conn.SetSessionID("")

	rm := r.rooms[sessionID]
	if rm == nil {
		return sessionID, true
	}
	for i, m := range rm.members {
		if m.conn.ID() == conn.ID() {
			rm.members = append(rm.members[:i], rm.members[i+1:]...)
			break
		}
	}
	if len(rm.members) == 0 && !rm.opened {
		delete(r.rooms, sessionID)
	}

	return sessionID, true
}

// Participants returns a snapshot of the session's participants in join
// order. The result is never nil.
func (r *Registry) Participants(sessionID string) []types.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants := []types.Participant{}
	if rm, exists := r.rooms[sessionID]; exists {
		for _, m := range rm.members {
			participants = append(participants, m.participant)
		}
	}
	return participants
}

// Connections returns the connections currently in the session's room.
func (r *Registry) Connections(sessionID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []interfaces.Connection
	if rm, exists := r.rooms[sessionID]; exists {
		for _, m := range rm.members {
			connections = append(connections, m.conn)
		}
	}
	return connections
}

// GetConnection looks up a live connection by id.
func (r *Registry) GetConnection(connectionID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[connectionID]
	return conn, exists
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activeRooms := 0
	for _, rm := range r.rooms {
		if len(rm.members) > 0 {
			activeRooms++
		}
	}

	return map[string]int{
		"total_connections": len(r.connections),
		"participants":      len(r.memberships),
		"active_sessions":   activeRooms,
	}
}

// CloseAll closes every tracked connection. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	connections := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	r.mu.RUnlock()

	for _, conn := range connections {
		_ = conn.Close()
	}
}
