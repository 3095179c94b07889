package sheets

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by the client wraps one of them;
// a cancelled or expired context is reported as transient and still matches
// context.Canceled or context.DeadlineExceeded.
var (
	// ErrPermanent means retrying cannot help: bad range, bad key, no access.
	ErrPermanent = errors.New("sheets: permanent failure")
	// ErrTransient means every attempt failed on rate limits, 5xx or the network.
	ErrTransient = errors.New("sheets: retries exhausted")
)

// StatusError is a non-2xx response from the API or a proxy.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}
