package router

import (
	"slices"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Router decides who receives each room event and hands frames to the transport
// ARCHITECTURAL DISCOVERY: Recipient selection is pure over a RoomState copy, so
// the coordinator can compute fan-out without touching connections directly
type Router struct {
	transport interfaces.Transport
	limiter   *RateLimiter // nil disables rate limiting
}

// NewRouter creates a router. limiter may be nil.
func NewRouter(transport interfaces.Transport, limiter *RateLimiter) (*Router, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	return &Router{transport: transport, limiter: limiter}, nil
}

// Allow applies the per-connection rate limit for one inbound event
func (r *Router) Allow(connID, event string) error {
	if r.limiter == nil {
		return nil
	}
	if !r.limiter.Allow(connID, event) {
		return ErrRateLimitExceeded
	}
	return nil
}

// Forget releases per-connection routing state
func (r *Router) Forget(connID string) {
	if r.limiter != nil {
		r.limiter.Forget(connID)
	}
}

// CanvasRecipients splits the room into the editors and viewers that should
// receive a canvas update from senderID. The sender never receives its own update.
func CanvasRecipients(state types.RoomState, senderID string) (editors, viewers []string) {
	editors = make([]string, 0, len(state.Editors))
	for _, id := range state.Editors {
		if id != senderID {
			editors = append(editors, id)
		}
	}
	viewers = make([]string, 0, len(state.Viewers))
	for _, id := range state.Viewers {
		if id != senderID {
			viewers = append(viewers, id)
		}
	}
	return editors, viewers
}

// RouteCanvas fans a canvas update out to the room and returns the number of frames emitted
func (r *Router) RouteCanvas(state types.RoomState, senderID, data string) int {
	editors, viewers := CanvasRecipients(state, senderID)
	for _, id := range editors {
		r.transport.EmitTo(id, types.EventCanvasForEditors, data)
	}
	for _, id := range viewers {
		r.transport.EmitTo(id, types.EventCanvasForViewers, data)
	}
	return len(editors) + len(viewers)
}

// RouteChat broadcasts a chat line to the room's group except the sender, then
// echoes it to the sender on the same event
func (r *Router) RouteChat(roomID, senderID, payload, displayName string) {
	r.transport.EmitToGroupExcept(roomID, senderID, types.EventChatMessage, payload, displayName)
	r.transport.EmitTo(senderID, types.EventChatMessage, payload, displayName)
}

// JoinRoom subscribes a connection to its room's transport group
func (r *Router) JoinRoom(connID, roomID string) {
	r.transport.JoinGroup(connID, roomID)
}

// LeaveRoom unsubscribes a connection from its room's transport group
func (r *Router) LeaveRoom(connID, roomID string) {
	r.transport.LeaveGroup(connID, roomID)
}

// AckJoin tells a connection which role it was given
func (r *Router) AckJoin(connID string, role types.Role) {
	event := types.EventJoinedAsViewer
	if role == types.RoleEditor {
		event = types.EventJoinedAsEditor
	}
	r.transport.EmitTo(connID, event)
}

// RouteSnapshot delivers the room's current canvas to a joining connection
func (r *Router) RouteSnapshot(connID string, role types.Role, snapshot string) {
	event := types.EventCanvasForViewers
	if role == types.RoleEditor {
		event = types.EventCanvasForEditors
	}
	r.transport.EmitTo(connID, event, snapshot)
}

// RouteError reports a rejected event back to its sender
func (r *Router) RouteError(connID, message string) {
	r.transport.EmitTo(connID, types.EventError, message)
}

// IsMember reports whether connID is in either list of the room
func IsMember(state types.RoomState, connID string) bool {
	return slices.Contains(state.Editors, connID) || slices.Contains(state.Viewers, connID)
}
