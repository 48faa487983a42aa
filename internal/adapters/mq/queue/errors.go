package queue

import "errors"

// Sentinel kinds for publish failures.
var (
	ErrFull   = errors.New("queue partition is full")
	ErrClosed = errors.New("queue is closed")
)
