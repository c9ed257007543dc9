package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrMissingDependency = errors.New("hub requires registry, sessions, router, store and persister")
)

// Reasons reported to clients in error events and to the rejected-events metric
const (
	reasonAlreadyJoined  = "already_joined"
	reasonInvalidJoin    = "invalid_join"
	reasonNoSession      = "no_session"
	reasonRateLimited    = "rate_limited"
	reasonInvalidMessage = "invalid_message"
)
