package persist

import "errors"

var (
	ErrQueueAlreadyRunning = errors.New("persistence queue is already running")
	ErrQueueNotRunning     = errors.New("persistence queue is not running")
	ErrQueueFull           = errors.New("persistence queue is full")
)
