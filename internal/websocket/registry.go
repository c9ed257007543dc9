package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"classboard/internal/metrics"
	"classboard/pkg/types"
)

// Registry tracks live connections and their named groups. It is the
// coordinator's transport.
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic
// maintains clean separation between connection tracking and room semantics
type Registry struct {
	mu          sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy fan-out
	connections map[string]*Connection
	groups      map[string]map[string]struct{} // group -> connID set
	memberOf    map[string]map[string]struct{} // connID -> group set
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewRegistry creates a new connection registry. logger and m may be nil.
func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		connections: make(map[string]*Connection),
		groups:      make(map[string]map[string]struct{}),
		memberOf:    make(map[string]map[string]struct{}),
		logger:      logger.With("component", "transport"),
		metrics:     m,
	}
}

// Register adds a connection
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes a connection and all of its group memberships
// FUNCTIONAL DISCOVERY: Idempotent operation safe for concurrent unregistration
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connections, connID)
	for group := range r.memberOf[connID] {
		r.removeFromGroup(connID, group)
	}
	delete(r.memberOf, connID)
}

// Get returns a connection by id
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connID]
	return conn, ok
}

// Count returns the number of registered connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes every registered connection; each read pump then unregisters itself
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return len(conns)
}

// GroupSize returns the number of connections in a group
func (r *Registry) GroupSize(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// JoinGroup adds a registered connection to a named group
func (r *Registry) JoinGroup(connID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connID]; !ok {
		r.logger.Debug("join group for unknown connection", "conn", connID, "group", group)
		return
	}
	if r.groups[group] == nil {
		r.groups[group] = make(map[string]struct{})
	}
	r.groups[group][connID] = struct{}{}
	if r.memberOf[connID] == nil {
		r.memberOf[connID] = make(map[string]struct{})
	}
	r.memberOf[connID][group] = struct{}{}
}

// LeaveGroup removes a connection from a group. No-op if absent.
func (r *Registry) LeaveGroup(connID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromGroup(connID, group)
}

// removeFromGroup requires r.mu held for writing
func (r *Registry) removeFromGroup(connID, group string) {
	if members, ok := r.groups[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
	if groups, ok := r.memberOf[connID]; ok {
		delete(groups, group)
	}
}

// EmitTo sends one event to a single connection
func (r *Registry) EmitTo(connID, event string, args ...interface{}) {
	data, ok := r.encode(event, args)
	if !ok {
		return
	}

	r.mu.RLock()
	conn, exists := r.connections[connID]
	r.mu.RUnlock()
	if !exists {
		r.logger.Debug("emit to unknown connection", "conn", connID, "event", event)
		return
	}
	r.deliver(conn, event, data)
}

// EmitToGroupExcept sends to every group member except one connection
func (r *Registry) EmitToGroupExcept(group, exceptConnID, event string, args ...interface{}) {
	data, ok := r.encode(event, args)
	if !ok {
		return
	}
	for _, conn := range r.members(group, exceptConnID) {
		r.deliver(conn, event, data)
	}
}

// EmitToGroup sends to every group member
func (r *Registry) EmitToGroup(group, event string, args ...interface{}) {
	r.EmitToGroupExcept(group, "", event, args...)
}

func (r *Registry) members(group, except string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.groups[group]))
	for connID := range r.groups[group] {
		if connID == except {
			continue
		}
		if conn, ok := r.connections[connID]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// encode marshals a frame once so fan-out reuses the same bytes
func (r *Registry) encode(event string, args []interface{}) ([]byte, bool) {
	frame, err := types.NewFrame(event, args...)
	if err == nil {
		var data []byte
		data, err = json.Marshal(frame)
		if err == nil {
			return data, true
		}
	}
	r.logger.Error("encode frame failed", "event", event, "error", err)
	return nil, false
}

func (r *Registry) deliver(conn *Connection, event string, data []byte) {
	err := conn.SendRaw(data)
	switch {
	case err == nil:
	case errors.Is(err, ErrSendBufferFull):
		r.metrics.FrameDropped()
		r.logger.Warn("frame dropped", "conn", conn.ID(), "event", event, "error", err)
	default:
		r.logger.Debug("frame not sent", "conn", conn.ID(), "event", event, "error", err)
	}
}
