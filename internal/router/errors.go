package router

import "errors"

// Router-specific error types
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNilTransport      = errors.New("router requires a transport")
)
