package repository

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrNotFound = errors.New("cache entry not found")
	ErrClosed   = errors.New("cache store closed")
	ErrCorrupt  = errors.New("cache entry corrupt")
)
