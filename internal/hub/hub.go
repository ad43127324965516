package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"codepair/internal/metrics"
	"codepair/internal/router"
	"codepair/internal/websocket"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

const (
	defaultQueueSize    = 1024
	defaultStoreTimeout = 5 * time.Second
	cleanupInterval     = time.Minute
)

// Notices sent to a client whose frame was dropped.
const (
	msgMalformed   = "malformed event"
	msgRateLimited = "rate limit exceeded"
)

// Directory is the part of the session directory the hub mutates.
type Directory interface {
	Lookup(ctx context.Context, sessionID string) (*types.Session, error)
	SetDocument(ctx context.Context, sessionID, document string) (*types.Session, error)
	SetLanguage(ctx context.Context, sessionID, language string) (*types.Session, error)
}

// Config tunes the hub queue and store calls.
type Config struct {
	QueueSize    int
	StoreTimeout time.Duration
}

// Hub applies realtime events one at a time on a single goroutine and fans
// out the results to session rooms.
type Hub struct {
	// Events and disconnects share one queue so a connection's disconnect is
	// always processed after the events it sent.
	inbox    chan inbound
	shutdown chan struct{}
	done     chan struct{}

	registry  *websocket.Registry
	directory Directory
	router    *router.Router
	logger    *zap.Logger

	storeTimeout time.Duration
	now          func() time.Time

	running bool
	mu      sync.RWMutex
}

type inbound struct {
	conn       interfaces.Connection
	event      router.Event
	disconnect bool
}

// NewHub creates a new hub
func NewHub(registry *websocket.Registry, directory Directory, r *router.Router, cfg Config, logger *zap.Logger) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		inbox:        make(chan inbound, cfg.QueueSize),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		registry:     registry,
		directory:    directory,
		router:       r,
		logger:       logger,
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.shutdown:
		return ErrHubNotRunning
	default:
	}
	h.running = true

	h.logger.Info("starting realtime hub", zap.Int("queue_size", cap(h.inbox)))
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down and waits for the loop to exit.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	h.mu.Unlock()

	<-h.done
	h.logger.Info("realtime hub stopped")
	return nil
}

func (h *Hub) isRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Submit decodes a raw frame from conn and queues it. Frames that fail the
// rate limit or validation are answered with an error frame and dropped.
// Blocks while the queue is full.
func (h *Hub) Submit(conn interfaces.Connection, payload []byte) error {
	if !h.isRunning() {
		return ErrHubNotRunning
	}

	event, err := h.router.Route(conn.ID(), payload)
	if err != nil {
		outcome, notice := metrics.OutcomeMalformed, msgMalformed
		if errors.Is(err, router.ErrRateLimitExceeded) {
			outcome, notice = metrics.OutcomeRateLimited, msgRateLimited
		}
		metrics.EventObserved(event.Type, outcome)
		h.logger.Debug("event dropped",
			zap.String("connection_id", conn.ID()),
			zap.Error(err))
		h.sendError(conn, notice)
		return err
	}

	if err := h.enqueue(inbound{conn: conn, event: event}); err != nil {
		metrics.EventObserved(event.Type, metrics.OutcomeDropped)
		return err
	}
	metrics.EventObserved(event.Type, metrics.OutcomeAccepted)
	return nil
}

// Disconnect queues the end of conn. Called once by the transport when the
// connection is gone.
func (h *Hub) Disconnect(conn interfaces.Connection) {
	if err := h.enqueue(inbound{conn: conn, disconnect: true}); err != nil {
		// Hub is down; nobody is left to notify.
		h.registry.Leave(conn)
	}
}

func (h *Hub) enqueue(in inbound) error {
	// A stopped hub may still have room in its inbox.
	select {
	case <-h.shutdown:
		return ErrHubNotRunning
	default:
	}

	select {
	case h.inbox <- in:
		return nil
	case <-h.shutdown:
		return ErrHubNotRunning
	}
}

// run is the main hub processing loop. Every registry and store mutation
// made on behalf of a realtime event happens here.
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case in := <-h.inbox:
			h.handle(ctx, in)

		case <-ticker.C:
			h.router.Cleanup()

		case <-h.shutdown:
			return

		case <-ctx.Done():
			h.mu.Lock()
			if h.running {
				h.running = false
				close(h.shutdown)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, in inbound) {
	if in.disconnect {
		h.handleDisconnect(in.conn)
		return
	}

	switch p := in.event.Payload.(type) {
	case *types.JoinSession:
		h.handleJoin(ctx, in.conn, p)
	case *types.CodeChange:
		h.handleCodeChange(ctx, in.conn, p)
	case *types.LanguageChange:
		h.handleLanguageChange(ctx, in.conn, p)
	default:
		h.logger.Warn("unhandled event", zap.String("type", in.event.Type))
	}
}

// handleJoin subscribes conn to the room, announces the new participant list
// to everyone in it and then sends the joiner the current document and
// language. A connection already in a room leaves it first.
func (h *Hub) handleJoin(ctx context.Context, conn interfaces.Connection, p *types.JoinSession) {
	if previous, left := h.registry.Leave(conn); left {
		h.logger.Debug("participant superseded by rejoin",
			zap.String("connection_id", conn.ID()),
			zap.String("session_id", previous))
		h.broadcastUsers(previous)
	}

	if _, err := h.registry.Join(conn, p.SessionID, h.now()); err != nil {
		h.logger.Warn("join failed", zap.String("connection_id", conn.ID()), zap.Error(err))
		h.sendError(conn, "could not join session")
		return
	}
	h.broadcastUsers(p.SessionID)

	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	session, err := h.directory.Lookup(storeCtx, p.SessionID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrSessionNotFound) {
			h.logger.Warn("session lookup failed",
				zap.String("session_id", p.SessionID),
				zap.Error(err))
		}
		h.logger.Debug("joined session without record", zap.String("session_id", p.SessionID))
		return
	}

	h.send(conn, types.Frame{Type: types.EventCodeUpdate, Data: types.CodeUpdate{Document: session.Document}})
	h.send(conn, types.Frame{Type: types.EventLanguageChange, Data: types.LanguageUpdate{Language: session.Language}})

	h.logger.Debug("participant joined",
		zap.String("connection_id", conn.ID()),
		zap.String("session_id", p.SessionID))
}

// handleCodeChange stores the document (last write wins) and relays it to
// everyone else in the room. Unknown sessions are relayed without storing.
func (h *Hub) handleCodeChange(ctx context.Context, conn interfaces.Connection, p *types.CodeChange) {
	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	if _, err := h.directory.SetDocument(storeCtx, p.SessionID, *p.Document); err != nil {
		h.storeFailed(conn, p.SessionID, err, "document")
	}

	h.broadcast(p.SessionID, types.Frame{
		Type: types.EventCodeUpdate,
		Data: types.CodeUpdate{Document: *p.Document, OriginConnectionID: conn.ID()},
	}, conn)
}

func (h *Hub) handleLanguageChange(ctx context.Context, conn interfaces.Connection, p *types.LanguageChange) {
	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	if _, err := h.directory.SetLanguage(storeCtx, p.SessionID, p.Language); err != nil {
		h.storeFailed(conn, p.SessionID, err, "language")
	}

	h.broadcast(p.SessionID, types.Frame{
		Type: types.EventLanguageChange,
		Data: types.LanguageUpdate{Language: p.Language},
	}, conn)
}

func (h *Hub) storeFailed(conn interfaces.Connection, sessionID string, err error, field string) {
	if errors.Is(err, interfaces.ErrSessionNotFound) {
		return
	}
	h.logger.Error("failed to store realtime update",
		zap.String("session_id", sessionID),
		zap.String("field", field),
		zap.Error(err))
	h.sendError(conn, "failed to save "+field)
}

func (h *Hub) handleDisconnect(conn interfaces.Connection) {
	h.router.Forget(conn.ID())

	sessionID, left := h.registry.Leave(conn)
	if !left {
		return
	}
	h.broadcastUsers(sessionID)

	h.logger.Debug("participant left",
		zap.String("connection_id", conn.ID()),
		zap.String("session_id", sessionID))
}

func (h *Hub) broadcastUsers(sessionID string) {
	h.broadcast(sessionID, types.Frame{
		Type: types.EventUsersUpdate,
		Data: types.UsersUpdate{Users: h.registry.Participants(sessionID)},
	}, nil)
}

// broadcast sends frame to every connection in the room except exclude.
func (h *Hub) broadcast(sessionID string, frame types.Frame, exclude interfaces.Connection) {
	for _, conn := range h.registry.Connections(sessionID) {
		if exclude != nil && conn.ID() == exclude.ID() {
			continue
		}
		h.send(conn, frame)
	}
}

// send never blocks the loop. A peer whose buffer is full is closed; its
// transport then reports the disconnect.
func (h *Hub) send(conn interfaces.Connection, frame types.Frame) {
	err := conn.WriteJSON(frame)
	if err == nil {
		return
	}

	metrics.BroadcastFailed()
	if errors.Is(err, websocket.ErrSendBufferFull) {
		h.logger.Warn("closing slow connection",
			zap.String("connection_id", conn.ID()),
			zap.String("frame", frame.Type))
		_ = conn.Close()
		return
	}
	h.logger.Debug("frame not delivered",
		zap.String("connection_id", conn.ID()),
		zap.String("frame", frame.Type),
		zap.Error(err))
}

func (h *Hub) sendError(conn interfaces.Connection, message string) {
	if err := conn.WriteJSON(types.Frame{
		Type: types.EventError,
		Data: types.ErrorNotice{Message: message},
	}); err != nil {
		h.logger.Debug("failed to send error frame",
			zap.String("connection_id", conn.ID()),
			zap.Error(err))
	}
}
