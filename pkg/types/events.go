package types

import (
	"encoding/json"
	"fmt"
)

// Wire event names. Clients and the server must agree on these exactly.
const (
	// client -> server
	EventJoinRoom    = "join-room"
	EventSendCanvas  = "send-canvas"
	EventSendMessage = "send-message"

	// server -> client
	EventJoinedAsViewer   = "joined-as-viewer"
	EventJoinedAsEditor   = "joined-as-editor"
	EventCanvasForViewers = "canvas-for-viewers"
	EventCanvasForEditors = "canvas-for-editors"
	EventChatMessage      = "chat-message"
	EventError            = "error"
)

// Frame is the JSON envelope carried by every WebSocket text message
// ARCHITECTURAL DISCOVERY: Positional args mirror the event signatures
// (join-room(roomId, displayName, userId)) instead of per-event structs
type Frame struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

// NewFrame builds an outbound frame, marshaling each argument
func NewFrame(event string, args ...interface{}) (*Frame, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("marshal arg %d of %s: %w", i, event, err)
		}
		raw = append(raw, data)
	}
	return &Frame{Event: event, Args: raw}, nil
}

// StringArg decodes the i-th argument as a string
func (f *Frame) StringArg(i int) (string, error) {
	if i < 0 || i >= len(f.Args) {
		return "", fmt.Errorf("%w: %s wants argument %d, got %d", ErrMissingArgument, f.Event, i, len(f.Args))
	}
	var s string
	if err := json.Unmarshal(f.Args[i], &s); err != nil {
		return "", fmt.Errorf("%w: %s argument %d: %v", ErrInvalidArgument, f.Event, i, err)
	}
	return s, nil
}

// JoinRequest is a decoded join-room frame
type JoinRequest struct {
	RoomID      string
	DisplayName string
	UserID      string
}

// ParseJoinRequest decodes and validates join-room(roomId, displayName, userId)
func ParseJoinRequest(f *Frame) (*JoinRequest, error) {
	roomID, err := f.StringArg(0)
	if err != nil {
		return nil, err
	}
	displayName, err := f.StringArg(1)
	if err != nil {
		return nil, err
	}
	userID, err := f.StringArg(2)
	if err != nil {
		return nil, err
	}
	req := &JoinRequest{RoomID: roomID, DisplayName: displayName, UserID: userID}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// IsClientEvent reports whether name is one of the client -> server events
func IsClientEvent(name string) bool {
	switch name {
	case EventJoinRoom, EventSendCanvas, EventSendMessage:
		return true
	default:
		return false
	}
}
