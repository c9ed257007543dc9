package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidRoomID      = errors.New("room ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidUserID      = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidDisplayName = errors.New("display name must be 1-200 characters")
	ErrInvalidTopic       = errors.New("lesson topic must be 1-200 characters")
	ErrInvalidContent     = errors.New("message content must be 1-4096 bytes")
	ErrMissingArgument    = errors.New("missing event argument")
	ErrInvalidArgument    = errors.New("invalid event argument")
)
