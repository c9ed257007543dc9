package types

import (
	"time"
)

// Role is the part a connection plays in a lesson room
type Role string

// ARCHITECTURAL DISCOVERY: Exactly two roles exist; the first joiner of a fresh
// room is the editor and every later joiner is a viewer
const (
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Lesson is the durable record owning a topic, the canvas snapshot and the chat log
// FUNCTIONAL DISCOVERY: Messages holds message IDs in append order, the same shape
// the store persists in lesson_messages
type Lesson struct {
	ID            string    `json:"id" db:"id"`
	Topic         string    `json:"topic" db:"topic"`
	CanvasContent string    `json:"canvas_content" db:"canvas_content"`
	Messages      []string  `json:"messages" db:"-"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Message is one chat line in a lesson. Immutable after creation.
type Message struct {
	ID        string    `json:"id" db:"id"`
	Content   string    `json:"content" db:"content"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RoomState is a copy of one room's live coordination state
// ARCHITECTURAL DISCOVERY: Registry hands out copies so callers can never
// mutate the registry's ordered sets behind its back
type RoomState struct {
	RoomID         string    `json:"room_id"`
	Editors        []string  `json:"editors"`
	Viewers        []string  `json:"viewers"`
	CanvasSnapshot string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Occupants returns the number of connections currently in the room
func (s RoomState) Occupants() int {
	return len(s.Editors) + len(s.Viewers)
}

// HasEditor reports whether the room already has its editor
func (s RoomState) HasEditor() bool {
	return len(s.Editors) > 0
}

// ConnectionSession is the state attached to a live connection once it joins a room
// FUNCTIONAL DISCOVERY: Written exactly once at join time, read-only afterwards,
// discarded when the connection closes
type ConnectionSession struct {
	ConnectionID string    `json:"connection_id"`
	RoomID       string    `json:"room_id"`
	DisplayName  string    `json:"display_name"`
	UserID       string    `json:"user_id"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joined_at"`
}

// RoomStats summarises the registry for health and monitoring endpoints
type RoomStats struct {
	Rooms       int `json:"rooms"`
	EmptyRooms  int `json:"empty_rooms"`
	Editors     int `json:"editors"`
	Viewers     int `json:"viewers"`
	Connections int `json:"connections"`
}
