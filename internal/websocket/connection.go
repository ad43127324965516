package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultSendBuffer   = 100
	defaultWriteTimeout = 10 * time.Second
)

// Connection implements the interfaces.Connection interface.
// All writes go through one writer goroutine; WriteJSON never blocks.
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	sessionID    string
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	mu           sync.RWMutex
}

// NewConnection wraps conn and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, id string, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = defaultSendBuffer
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           id,
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop exits on the first failed write and closes the connection, which
// in turn ends the read pump.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.abort()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.abort()
				return
			}

		case <-c.ctx.Done():
			c.flush()
			return
		}
	}
}

func (c *Connection) abort() {
	_ = c.Close()
	_ = c.conn.Close()
}

// flush writes whatever is already queued, then sends a close frame.
func (c *Connection) flush() {
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.conn.SetWriteDeadline(deadline)
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.conn.Close()
				return
			}
		default:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = c.conn.Close()
			return
		}
	}
}

func (c *Connection) ID() string {
	return c.id
}

// WriteJSON queues v for delivery. It fails with ErrSendBufferFull instead of
// waiting when the peer is not keeping up.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// WritePing sends a ping control frame. gorilla allows WriteControl
// concurrently with the writer goroutine.
func (c *Connection) WritePing() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close stops the writer goroutine, which flushes pending frames and closes
// the socket. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
	})
	return nil
}

// Done is closed once the connection starts shutting down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Connection) SetSessionID(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}
