package websocket

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codepair/internal/metrics"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// Dispatcher receives inbound frames and the end-of-connection signal.
// Implemented by the hub.
type Dispatcher interface {
	Submit(conn interfaces.Connection, payload []byte) error
	Disconnect(conn interfaces.Connection)
}

// HandlerConfig holds transport timeouts and limits.
type HandlerConfig struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
}

// DefaultHandlerConfig returns a 30s heartbeat with a 60s pong deadline.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		BufferSize:     defaultSendBuffer,
		MaxMessageSize: 1 << 20,
	}
}

// Handler upgrades HTTP requests and pumps frames between the socket and the
// dispatcher.
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	config     HandlerConfig
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, dispatcher Dispatcher, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultHandlerConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
		upgrader: websocket.Upgrader{
			// Editors are served from any origin, same as the HTTP CORS policy.
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// ServeHTTP upgrades the request, announces the assigned connection id and
// starts the read pump.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	wsConn := NewConnection(conn, uuid.NewString(), h.config.BufferSize, h.config.WriteTimeout)
	if err := h.registry.Register(wsConn); err != nil {
		h.logger.Warn("failed to register connection", zap.Error(err))
		_ = wsConn.Close()
		return
	}
	metrics.ConnectionOpened()

	h.logger.Debug("connection opened",
		zap.String("connection_id", wsConn.ID()),
		zap.String("remote_addr", r.RemoteAddr))

	if err := wsConn.WriteJSON(types.Frame{
		Type: types.EventConnected,
		Data: types.Connected{ConnectionID: wsConn.ID()},
	}); err != nil {
		h.logger.Debug("failed to send connected frame", zap.Error(err))
	}

	go h.handleConnection(wsConn, conn)
}

// handleConnection runs the heartbeat and read pump. Whatever ends the pump,
// the dispatcher is told exactly once.
func (h *Handler) handleConnection(wsConn *Connection, conn *websocket.Conn) {
	defer func() {
		h.dispatcher.Disconnect(wsConn)
		h.registry.Unregister(wsConn)
		_ = wsConn.Close()
		metrics.ConnectionClosed()
		h.logger.Debug("connection closed", zap.String("connection_id", wsConn.ID()))
	}()

	if h.config.MaxMessageSize > 0 {
		conn.SetReadLimit(h.config.MaxMessageSize)
	}
	if err := conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.heartbeat(wsConn)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Debug("websocket read error",
					zap.String("connection_id", wsConn.ID()),
					zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			_ = wsConn.WriteJSON(types.Frame{
				Type: types.EventError,
				Data: types.ErrorNotice{Message: "only text frames are supported"},
			})
			continue
		}

		if err := h.dispatcher.Submit(wsConn, data); err != nil {
			h.logger.Debug("event rejected",
				zap.String("connection_id", wsConn.ID()),
				zap.Error(err))
		}
	}
}

func (h *Handler) heartbeat(wsConn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := wsConn.WritePing(); err != nil {
				_ = wsConn.Close()
				return
			}
		case <-wsConn.Done():
			return
		}
	}
}
