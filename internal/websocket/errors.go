package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Registry-related errors
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrDuplicateConnection = errors.New("connection id already registered")
)

// Handler-related errors
var (
	ErrNilCoordinator = errors.New("handler requires a coordinator")
	ErrNilRegistry    = errors.New("handler requires a registry")
)
