package session

import "errors"

// Connection session error types
var (
	ErrSessionAlreadySet = errors.New("connection already joined a room")
	ErrSessionNotFound   = errors.New("connection has no session")
	ErrInvalidSession    = errors.New("session requires connection id, room id and role")
)
