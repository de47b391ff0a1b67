package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned in the JSON error envelope
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeLineUnavailable   = "LINE_UNAVAILABLE"
	CodeFieldLocked       = "FIELD_LOCKED"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeDatabase          = "DATABASE_ERROR"
)

// ServiceError is a failure the API reports to the caller with an HTTP status
type ServiceError struct {
	Status  int
	Code    string
	Message string
	Details interface{}
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// AsServiceError extracts a ServiceError from err. Anything else becomes a
// 500 DATABASE_ERROR.
func AsServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return &ServiceError{Status: http.StatusInternalServerError, Code: CodeDatabase, Message: "Unexpected database error", Err: err}
}

func validationError(message string, details interface{}) *ServiceError {
	return &ServiceError{Status: http.StatusBadRequest, Code: CodeValidation, Message: message, Details: details}
}

func notFound(what string) *ServiceError {
	return &ServiceError{Status: http.StatusNotFound, Code: CodeNotFound, Message: what + " not found"}
}

func dbError(message string, err error) *ServiceError {
	return &ServiceError{Status: http.StatusInternalServerError, Code: CodeDatabase, Message: message, Err: err}
}
