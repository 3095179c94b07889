package queue

import "errors"

// Sentinel kinds for enqueue failures.
var (
	ErrFull   = errors.New("refresh queue full")
	ErrClosed = errors.New("refresh queue closed")
)
