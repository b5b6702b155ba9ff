package errors

import (
	"errors"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotInitialized  ErrorType = "NOT_INITIALIZED"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeAlreadyResolved ErrorType = "ALREADY_RESOLVED"
	ErrorTypeUnknownStrategy ErrorType = "UNKNOWN_STRATEGY"
	ErrorTypeConflictPending ErrorType = "CONFLICT_PENDING"
	ErrorTypeAlreadyExists   ErrorType = "ALREADY_EXISTS"
	ErrorTypeValidation      ErrorType = "VALIDATION"
	ErrorTypeInternal        ErrorType = "INTERNAL"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is an *Error of the same Type, so the sentinels
// below can be used with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// Sentinels for errors.Is checks.
var (
	ErrNotInitialized  = &Error{Type: ErrorTypeNotInitialized}
	ErrNotFound        = &Error{Type: ErrorTypeNotFound}
	ErrAlreadyResolved = &Error{Type: ErrorTypeAlreadyResolved}
	ErrUnknownStrategy = &Error{Type: ErrorTypeUnknownStrategy}
	ErrConflictPending = &Error{Type: ErrorTypeConflictPending}
	ErrValidation      = &Error{Type: ErrorTypeValidation}
)

func NotInitialized(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotInitialized,
		Message: message,
		Code:    http.StatusServiceUnavailable,
	}
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func AlreadyResolved(message string) *Error {
	return &Error{
		Type:    ErrorTypeAlreadyResolved,
		Message: message,
		Code:    http.StatusConflict,
	}
}

func UnknownStrategy(strategy string) *Error {
	return &Error{
		Type:    ErrorTypeUnknownStrategy,
		Message: "unknown resolution strategy: " + strategy,
		Code:    http.StatusBadRequest,
		Details: map[string]string{"strategy": strategy},
	}
}

func ConflictPending(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeConflictPending,
		Message: message,
		Code:    http.StatusConflict,
		Details: details,
	}
}

func AlreadyExists(message string) *Error {
	return &Error{
		Type:    ErrorTypeAlreadyExists,
		Message: message,
		Code:    http.StatusConflict,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

// StatusCode returns the HTTP status for err, falling back to 500 for
// anything that is not a typed *Error.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}
