package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"classboard/internal/metrics"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Config holds per-connection transport settings
type Config struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string // empty allows any origin
}

// DefaultConfig returns the default transport settings.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   5 * time.Second,
		SendBuffer:     100,
		MaxMessageSize: 4 << 20,
	}
}

// Handler upgrades HTTP requests and pumps frames into the coordinator
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic;
// the handler only decodes frames and forwards them
type Handler struct {
	config      Config
	registry    *Registry
	coordinator interfaces.Coordinator
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewHandler creates a new WebSocket handler. logger and m may be nil.
func NewHandler(cfg Config, registry *Registry, coordinator interfaces.Coordinator, logger *slog.Logger, m *metrics.Metrics) (*Handler, error) {
	if coordinator == nil {
		return nil, ErrNilCoordinator
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	h := &Handler{
		config:      cfg,
		registry:    registry,
		coordinator: coordinator,
		logger:      logger.With("component", "websocket"),
		metrics:     m,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h, nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 || slices.Contains(h.config.AllowedOrigins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	// Non-browser clients send no Origin
	return origin == "" || slices.Contains(h.config.AllowedOrigins, origin)
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades the request and starts the connection's read pump
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	wsConn := NewConnection(conn, h.config.SendBuffer, h.config.WriteTimeout)
	if err := h.registry.Register(wsConn); err != nil {
		h.logger.Error("register connection failed", "conn", wsConn.ID(), "error", err)
		_ = wsConn.Close()
		return
	}
	h.metrics.ConnectionOpened()
	h.logger.Debug("connection opened", "conn", wsConn.ID(), "remote", r.RemoteAddr)

	go h.handleConnection(wsConn)
}

// handleConnection runs the heartbeat and read pump; any exit disconnects
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures the coordinator always
		// hears about the disconnect, including abrupt network loss
		if err := h.coordinator.Disconnect(conn.ID()); err != nil {
			h.logger.Warn("disconnect not delivered", "conn", conn.ID(), "error", err)
		}
		h.registry.Unregister(conn.ID())
		_ = conn.Close()
		h.metrics.ConnectionClosed()
		h.logger.Debug("connection closed", "conn", conn.ID())
	}()

	conn.conn.SetReadLimit(h.config.MaxMessageSize)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("websocket read ended", "conn", conn.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.dispatch(conn, data)
	}
}

// pingLoop keeps the read deadline alive through idle periods
func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// dispatch decodes one frame and forwards it to the coordinator
func (h *Handler) dispatch(conn *Connection, data []byte) {
	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
		h.logger.Debug("malformed frame ignored", "conn", conn.ID(), "error", err)
		return
	}

	var err error
	switch frame.Event {
	case types.EventJoinRoom:
		var req *types.JoinRequest
		req, err = types.ParseJoinRequest(&frame)
		if err != nil {
			h.metrics.Rejected("invalid_join")
			h.registry.EmitTo(conn.ID(), types.EventError, "invalid_join")
			h.logger.Debug("invalid join-room", "conn", conn.ID(), "error", err)
			return
		}
		err = h.coordinator.Join(conn.ID(), req.RoomID, req.DisplayName, req.UserID)

	case types.EventSendCanvas:
		var canvas string
		if canvas, err = frame.StringArg(0); err != nil {
			h.logger.Debug("invalid send-canvas", "conn", conn.ID(), "error", err)
			return
		}
		err = h.coordinator.CanvasUpdate(conn.ID(), canvas)

	case types.EventSendMessage:
		var payload string
		if payload, err = frame.StringArg(0); err != nil {
			h.logger.Debug("invalid send-message", "conn", conn.ID(), "error", err)
			return
		}
		err = h.coordinator.ChatMessage(conn.ID(), payload)

	default:
		h.logger.Debug("unknown event ignored", "conn", conn.ID(), "event", frame.Event)
		return
	}

	if err != nil {
		h.logger.Warn("event not delivered to coordinator", "conn", conn.ID(), "event", frame.Event, "error", err)
	}
}
