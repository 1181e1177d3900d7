package synthesizer

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// Kind is the closed set of failures a Synthesizer surfaces to its caller.
type Kind int

const (
	KindNone Kind = iota
	KindTimeout
	KindStatus
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

var ErrEmptyText = errors.New("cannot synthesize empty text")

type APITimeoutError struct {
	cause error
}

func NewAPITimeoutError(cause error) *APITimeoutError {
	return &APITimeoutError{cause: cause}
}

func (e *APITimeoutError) Error() string {
	if e.cause == nil {
		return "request timed out"
	}
	return fmt.Sprintf("request timed out: %v", e.cause)
}

func (e *APITimeoutError) Unwrap() error { return e.cause }
func (e *APITimeoutError) Cause() error  { return e.cause }

// APIStatusError is a vendor failure that came with a status code.
// StatusCode is -1 when the vendor did not report one.
type APIStatusError struct {
	Message    string
	StatusCode int
	RequestID  string
	Body       string
	cause      error
}

func NewAPIStatusError(message string, statusCode int, requestID string, body string, cause error) *APIStatusError {
	return &APIStatusError{
		Message:    message,
		StatusCode: statusCode,
		RequestID:  requestID,
		Body:       body,
		cause:      cause,
	}
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("api status error %d: %s", e.StatusCode, e.Message)
}

func (e *APIStatusError) Unwrap() error { return e.cause }
func (e *APIStatusError) Cause() error  { return e.cause }

type APIConnectionError struct {
	cause error
}

func NewAPIConnectionError(cause error) *APIConnectionError {
	return &APIConnectionError{cause: cause}
}

func (e *APIConnectionError) Error() string {
	if e.cause == nil {
		return "connection error"
	}
	return fmt.Sprintf("connection error: %v", e.cause)
}

func (e *APIConnectionError) Unwrap() error { return e.cause }
func (e *APIConnectionError) Cause() error  { return e.cause }

// KindOf reports which of the three API error kinds err is, KindNone for nil or foreign errors.
func KindOf(err error) Kind {
	var timeoutErr *APITimeoutError
	var statusErr *APIStatusError
	var connErr *APIConnectionError
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &timeoutErr):
		return KindTimeout
	case errors.As(err, &statusErr):
		return KindStatus
	case errors.As(err, &connErr):
		return KindConnection
	default:
		return KindNone
	}
}

// StatusCode returns the vendor status code carried by an APIStatusError.
func StatusCode(err error) (int, bool) {
	var statusErr *APIStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}

// ErrorMapper translates a vendor error into one of the API errors, ok is false when it does not apply.
type ErrorMapper func(err error) (mapped error, ok bool)

// MapError runs err through the mappers in order, first match wins.
// Anything no mapper claims becomes an APIConnectionError.
func MapError(err error, mappers ...ErrorMapper) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindNone {
		return err
	}
	for _, mapper := range mappers {
		if mapped, ok := mapper(err); ok {
			return mapped
		}
	}
	return NewAPIConnectionError(err)
}

// MapDeadline claims context deadlines and network timeouts.
func MapDeadline(err error) (error, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewAPITimeoutError(err), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewAPITimeoutError(err), true
	}
	return nil, false
}
