package interfaces

// Connection is one live realtime client as seen by the hub and the registry.
// Implementations must make WriteJSON safe for concurrent callers.
type Connection interface {
	// ID returns the transport-assigned connection id.
	ID() string

	// WriteJSON queues v for delivery to the client. It must not block on a
	// slow peer.
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources. Idempotent.
	Close() error

	// SessionID returns the session this connection has joined, or "".
	SessionID() string

	// SetSessionID records the joined session for disconnect handling.
	SetSessionID(sessionID string)
}
