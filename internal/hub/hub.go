package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"classboard/internal/metrics"
	"classboard/internal/router"
	"classboard/internal/session"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Persister accepts fire-and-forget lesson writes
type Persister interface {
	SaveCanvas(roomID, canvasData string) error
	AppendMessage(roomID, content, ownerID string) error
}

// Config holds coordinator tuning.
type Config struct {
	EventBuffer   int
	LookupTimeout time.Duration
	ReapEmpty     bool
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		EventBuffer: 1024,
		// bounds how long one fresh room's lookup can hold up every other room
		LookupTimeout: 500 * time.Millisecond,
	}
}

type eventKind int

const (
	eventJoin eventKind = iota
	eventCanvas
	eventChat
	eventDisconnect
	eventSync
)

// event is one unit of work for the loop
type event struct {
	kind   eventKind
	connID string
	join   types.JoinRequest
	data   string
	done   chan struct{} // eventSync only
}

// Hub is the room coordinator
// ARCHITECTURAL DISCOVERY: One goroutine consumes one ordered channel, so every
// join, canvas, chat and disconnect is applied in arrival order without locks
// on room state
type Hub struct {
	events   chan event
	shutdown chan struct{}
	done     chan struct{}

	rooms     interfaces.RoomRegistry
	sessions  *session.Manager
	router    *router.Router
	store     interfaces.LessonStore
	persister Persister

	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	running  bool
	drainCtx context.Context // set by Stop before shutdown closes
	mu       sync.RWMutex
}

// Deps groups the hub's collaborators
type Deps struct {
	Rooms     interfaces.RoomRegistry
	Sessions  *session.Manager
	Router    *router.Router
	Store     interfaces.LessonStore
	Persister Persister
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// NewHub creates a stopped hub
func NewHub(cfg Config, deps Deps) (*Hub, error) {
	if deps.Rooms == nil || deps.Sessions == nil || deps.Router == nil || deps.Store == nil || deps.Persister == nil {
		return nil, ErrMissingDependency
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultConfig().LookupTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		events:    make(chan event, cfg.EventBuffer),
		rooms:     deps.Rooms,
		sessions:  deps.Sessions,
		router:    deps.Router,
		store:     deps.Store,
		persister: deps.Persister,
		config:    cfg,
		logger:    logger.With("component", "hub"),
		metrics:   deps.Metrics,
	}, nil
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	go h.run(ctx, h.shutdown, h.done)

	h.logger.Info("room coordinator started")
	return nil
}

// Stop refuses new events, processes the ones already queued until ctx
// expires, and waits for the loop to exit. Events left after ctx expires are
// discarded and reported in the error.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	h.drainCtx = ctx
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	<-done

	discarded := 0
	for len(h.events) > 0 {
		<-h.events
		discarded++
	}
	if discarded > 0 {
		h.logger.Warn("room coordinator stopped with events discarded", "count", discarded)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("coordinator drain: %d events discarded: %w", discarded, err)
		}
		return fmt.Errorf("coordinator drain: %d events discarded", discarded)
	}
	h.logger.Info("room coordinator stopped")
	return nil
}

// Join queues a join-room request
func (h *Hub) Join(connID, roomID, displayName, userID string) error {
	return h.enqueue(event{
		kind:   eventJoin,
		connID: connID,
		join:   types.JoinRequest{RoomID: roomID, DisplayName: displayName, UserID: userID},
	})
}

// CanvasUpdate queues a send-canvas event
func (h *Hub) CanvasUpdate(connID, canvasData string) error {
	return h.enqueue(event{kind: eventCanvas, connID: connID, data: canvasData})
}

// ChatMessage queues a send-message event
func (h *Hub) ChatMessage(connID, payload string) error {
	return h.enqueue(event{kind: eventChat, connID: connID, data: payload})
}

// Disconnect queues cleanup for a closed connection
func (h *Hub) Disconnect(connID string) error {
	return h.enqueue(event{kind: eventDisconnect, connID: connID})
}

// Sync returns once every event queued before the call has been processed
func (h *Hub) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := h.enqueueContext(ctx, event{kind: eventSync, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) enqueue(e event) error {
	return h.enqueueContext(context.Background(), e)
}

// enqueueContext blocks while the buffer is full so a connection's events are
// never dropped or reordered; the reader goroutine absorbs the backpressure
func (h *Hub) enqueueContext(ctx context.Context, e event) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	shutdown := h.shutdown
	h.mu.RUnlock()

	select {
	case h.events <- e:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main hub processing loop
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case e := <-h.events:
			h.handle(ctx, e)
		case <-shutdown:
			h.mu.RLock()
			drainCtx := h.drainCtx
			h.mu.RUnlock()
			h.drain(ctx, drainCtx)
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

// drain handles events queued before shutdown until none are left or drainCtx expires
func (h *Hub) drain(ctx, drainCtx context.Context) {
	if drainCtx == nil {
		return
	}
	for {
		if drainCtx.Err() != nil {
			return
		}
		select {
		case e := <-h.events:
			h.handle(ctx, e)
		default:
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, e event) {
	switch e.kind {
	case eventJoin:
		h.handleJoin(ctx, e.connID, e.join)
	case eventCanvas:
		h.handleCanvas(e.connID, e.data)
	case eventChat:
		h.handleChat(e.connID, e.data)
	case eventDisconnect:
		h.handleDisconnect(e.connID)
	case eventSync:
		close(e.done)
	}
}

// handleJoin assigns the first joiner of a fresh room as editor and everyone
// after as viewer
func (h *Hub) handleJoin(ctx context.Context, connID string, req types.JoinRequest) {
	logger := h.logger.With("conn", connID, "room", req.RoomID)

	if err := req.Validate(); err != nil {
		h.reject(connID, reasonInvalidJoin, err.Error())
		return
	}
	if _, joined := h.sessions.Get(connID); joined {
		h.reject(connID, reasonAlreadyJoined, "connection already joined a room")
		return
	}

	state, created := h.rooms.CreateIfAbsent(req.RoomID)
	role := types.RoleViewer
	if created {
		role = types.RoleEditor
	}

	h.router.JoinRoom(connID, req.RoomID)
	if err := h.sessions.Set(types.ConnectionSession{
		ConnectionID: connID,
		RoomID:       req.RoomID,
		DisplayName:  req.DisplayName,
		UserID:       req.UserID,
		Role:         role,
	}); err != nil {
		// Unreachable after the Get above; the loop is the only writer
		logger.Error("session set failed", "error", err)
		return
	}

	if role == types.RoleEditor {
		if err := h.rooms.PromoteToEditor(req.RoomID, connID); err != nil {
			logger.Error("promote to editor failed", "error", err)
		}
		snapshot := h.loadSnapshot(ctx, req.RoomID)
		if err := h.rooms.SetSnapshot(req.RoomID, snapshot); err != nil {
			logger.Error("cache snapshot failed", "error", err)
		}
		h.router.AckJoin(connID, types.RoleEditor)
		h.router.RouteSnapshot(connID, types.RoleEditor, snapshot)
	} else {
		if err := h.rooms.AddViewer(req.RoomID, connID); err != nil {
			logger.Error("add viewer failed", "error", err)
		}
		h.router.AckJoin(connID, types.RoleViewer)
		h.router.RouteSnapshot(connID, types.RoleViewer, state.CanvasSnapshot)
	}

	h.metrics.Joined(string(role))
	h.metrics.SetRooms(h.rooms.Stats().Rooms)
	logger.Info("joined room", "role", role, "user", req.UserID)
}

// loadSnapshot reads the stored canvas for a fresh room; any failure yields ""
func (h *Hub) loadSnapshot(ctx context.Context, roomID string) string {
	lookupCtx, cancel := context.WithTimeout(ctx, h.config.LookupTimeout)
	defer cancel()

	lesson, err := h.store.FindLessonByID(lookupCtx, roomID)
	if err != nil {
		if errors.Is(err, interfaces.ErrLessonNotFound) {
			h.logger.Warn("no lesson for room", "room", roomID)
		} else {
			h.logger.Error("lesson lookup failed", "room", roomID, "error", err)
		}
		return ""
	}
	return lesson.CanvasContent
}

// handleCanvas is never rate limited: every update is a full snapshot, so a
// dropped final update would leave viewers and storage behind the sender
func (h *Hub) handleCanvas(connID, canvasData string) {
	sess, ok := h.sessionFor(connID, types.EventSendCanvas)
	if !ok {
		return
	}

	state, ok := h.rooms.Get(sess.RoomID)
	if !ok {
		h.logger.Debug("canvas for unknown room", "conn", connID, "room", sess.RoomID)
		return
	}
	if err := h.rooms.SetSnapshot(sess.RoomID, canvasData); err != nil {
		h.logger.Error("cache snapshot failed", "room", sess.RoomID, "error", err)
	}

	h.router.RouteCanvas(state, connID, canvasData)
	h.metrics.CanvasUpdated()

	if err := h.persister.SaveCanvas(sess.RoomID, canvasData); err != nil {
		h.logger.Warn("canvas not queued for persistence", "room", sess.RoomID, "error", err)
	}
}

func (h *Hub) handleChat(connID, payload string) {
	sess, ok := h.sessionFor(connID, types.EventSendMessage)
	if !ok {
		return
	}
	if !h.allow(connID, types.EventSendMessage) {
		return
	}
	if payload == "" || len(payload) > types.MaxChatMessageLength {
		h.reject(connID, reasonInvalidMessage, types.ErrInvalidContent.Error())
		return
	}

	h.router.RouteChat(sess.RoomID, connID, payload, sess.DisplayName)
	h.metrics.ChatBroadcast()

	if err := h.persister.AppendMessage(sess.RoomID, payload, sess.UserID); err != nil {
		h.logger.Warn("message not queued for persistence", "room", sess.RoomID, "error", err)
	}
}

// handleDisconnect removes the connection from its room. No viewer is promoted.
func (h *Hub) handleDisconnect(connID string) {
	h.router.Forget(connID)

	sess, ok := h.sessions.Discard(connID)
	if !ok {
		h.logger.Debug("disconnect without session", "conn", connID)
		return
	}

	h.rooms.RemoveConnection(sess.RoomID, connID)
	h.router.LeaveRoom(connID, sess.RoomID)

	if h.config.ReapEmpty && h.rooms.ReapIfEmpty(sess.RoomID) {
		h.logger.Info("reaped empty room", "room", sess.RoomID)
	}
	h.metrics.SetRooms(h.rooms.Stats().Rooms)
	h.logger.Info("left room", "conn", connID, "room", sess.RoomID, "role", sess.Role)
}

// sessionFor returns the sender's session; events from connections that never
// joined are dropped
func (h *Hub) sessionFor(connID, eventName string) (types.ConnectionSession, bool) {
	sess, ok := h.sessions.Get(connID)
	if !ok {
		h.metrics.Rejected(reasonNoSession)
		h.logger.Debug("event before join ignored", "conn", connID, "event", eventName)
	}
	return sess, ok
}

func (h *Hub) allow(connID, eventName string) bool {
	if err := h.router.Allow(connID, eventName); err != nil {
		h.metrics.RateLimited(eventName)
		h.router.RouteError(connID, reasonRateLimited)
		h.logger.Debug("event rate limited", "conn", connID, "event", eventName)
		return false
	}
	return true
}

func (h *Hub) reject(connID, reason, detail string) {
	h.metrics.Rejected(reason)
	h.router.RouteError(connID, reason)
	h.logger.Debug("event rejected", "conn", connID, "reason", reason, "detail", detail)
}
