package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a backend error
type Kind string

const (
	// KindTransport means the request never produced a response
	KindTransport Kind = "transport"
	// KindStatus means the backend answered with a non-2xx status
	KindStatus Kind = "status"
	// KindDecode means a 2xx body could not be decoded
	KindDecode Kind = "decode"
	// KindValidation means the input was rejected before any request was made
	KindValidation Kind = "validation"
)

// Error is the single error shape returned for every failed backend interaction.
type Error struct {
	Kind       Kind   `json:"kind"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	Status     int    `json:"status,omitempty"`
	StatusText string `json:"statusText,omitempty"`
	// Message is the raw response body for KindStatus, or a human message otherwise.
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Message != "" {
			return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, e.StatusText, e.Message)
		}
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.StatusText)
	case KindValidation:
		return e.Message
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError returns a KindValidation error with the given message
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// AsError extracts a *Error from err
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is a backend error of the given kind
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	if e, ok := AsError(err); ok {
		return e.Status
	}
	return 0
}

// IsNotFound reports whether the backend answered 404
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
