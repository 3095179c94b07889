package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/botpulse/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("data not available")
)

// Error is an API failure tagged with the operation and a kind that decides
// the response status.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return e.Op
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap tags err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewKind returns an error of kind for op without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// classify maps an error to the response status, code and the message shown
// to clients. Upstream detail stays in the logs.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request", clientMessage(err)
	case errors.Is(err, ErrNotFound),
		errors.Is(err, service.ErrUnknownDepartment),
		errors.Is(err, service.ErrUnknownSection),
		errors.Is(err, service.ErrWrongKind):
		return http.StatusNotFound, "not_found", clientMessage(err)
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure", "refresh queue is full"
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, service.ErrUnavailable),
		errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable", service.ErrUnavailable.Error()
	}
	return http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError)
}

// clientMessage drops the operation prefix.
func clientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch {
		case e.Err != nil:
			return e.Err.Error()
		case e.Kind != nil:
			return e.Kind.Error()
		}
	}
	return err.Error()
}
