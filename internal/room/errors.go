package room

import "errors"

// Room registry error types
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrEditorExists  = errors.New("room already has an editor")
	ErrAlreadyMember = errors.New("connection is already in the room")
)
