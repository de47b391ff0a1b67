package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError reports a failed call to the order API: either the request
// never got a response (Err set, StatusCode zero) or the backend answered
// with a non-2xx status and its error envelope.
type TransportError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Details    interface{}
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	msg := fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusOf returns the HTTP status carried by err, or zero
func StatusOf(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// CodeOf returns the backend error code carried by err, or ""
func CodeOf(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsNotFound reports whether the backend answered 404
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsConflict reports whether the backend answered 409
func IsConflict(err error) bool {
	return StatusOf(err) == http.StatusConflict
}
