package interfaces

// Transport is the bidirectional pub/sub surface the coordinator drives
// FUNCTIONAL DISCOVERY: Emit methods never block the caller; a connection that
// cannot keep up loses frames instead of stalling every other room
type Transport interface {
	// JoinGroup adds a connection to a named group
	JoinGroup(connID, group string)

	// LeaveGroup removes a connection from a named group (no-op if absent)
	LeaveGroup(connID, group string)

	// EmitTo sends one event to a single connection
	EmitTo(connID, event string, args ...interface{})

	// EmitToGroupExcept sends to every group member except one connection
	EmitToGroupExcept(group, exceptConnID, event string, args ...interface{})

	// EmitToGroup sends to every group member including the sender
	EmitToGroup(group, event string, args ...interface{})
}

// Coordinator consumes connection events; the transport calls it, never the reverse
type Coordinator interface {
	Join(connID, roomID, displayName, userID string) error
	CanvasUpdate(connID, canvasData string) error
	ChatMessage(connID, payload string) error
	Disconnect(connID string) error
}
