// Package errors defines the typed error taxonomy shared by the store,
// the repositories, the services and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Store and repository outcomes
	ErrorTypeAlreadyExists   ErrorType = "ALREADY_EXISTS"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeConditionFailed ErrorType = "CONDITION_FAILED"
	ErrorTypeInvalidKeyInput ErrorType = "INVALID_KEY_INPUT"
	ErrorTypeUnavailable     ErrorType = "STORE_UNAVAILABLE"

	// Business rules
	ErrorTypeFull         ErrorType = "FULL"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"

	ErrorTypeInternal ErrorType = "INTERNAL"
)

// Sentinels for errors.Is. Matching is by type only.
var (
	ErrAlreadyExists   = &AppError{Type: ErrorTypeAlreadyExists}
	ErrNotFound        = &AppError{Type: ErrorTypeNotFound}
	ErrConditionFailed = &AppError{Type: ErrorTypeConditionFailed}
	ErrInvalidKeyInput = &AppError{Type: ErrorTypeInvalidKeyInput}
	ErrUnavailable     = &AppError{Type: ErrorTypeUnavailable}
	ErrFull            = &AppError{Type: ErrorTypeFull}
	ErrConflict        = &AppError{Type: ErrorTypeConflict}
	ErrValidation      = &AppError{Type: ErrorTypeValidation}
	ErrUnauthorized    = &AppError{Type: ErrorTypeUnauthorized}
	ErrForbidden       = &AppError{Type: ErrorTypeForbidden}
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Retryable  bool                   `json:"-"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError of the same type.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// captureStackTrace captures the current stack trace
func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := ""
	for {
		frame, more := frames.Next()
		stack += fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return stack
}

func newError(errType ErrorType, status int, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: status,
		StackTrace: captureStackTrace(),
	}
}

// NewAlreadyExistsError reports an occupied primary key.
func NewAlreadyExistsError(resource, id string) *AppError {
	return newError(ErrorTypeAlreadyExists, http.StatusConflict,
		fmt.Sprintf("%s '%s' already exists", resource, id))
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource, id string) *AppError {
	if id == "" {
		return newError(ErrorTypeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource))
	}
	return newError(ErrorTypeNotFound, http.StatusNotFound, fmt.Sprintf("%s '%s' not found", resource, id))
}

// NewConditionFailedError reports a conditional write whose guard did not hold
// on an item that does exist.
func NewConditionFailedError(message string) *AppError {
	return newError(ErrorTypeConditionFailed, http.StatusConflict, message)
}

// NewInvalidKeyInputError reports a missing or empty identifying field.
func NewInvalidKeyInputError(field string) *AppError {
	return newError(ErrorTypeInvalidKeyInput, http.StatusBadRequest,
		fmt.Sprintf("key field '%s' is required", field))
}

// NewUnavailableError wraps a backend or transport failure. Reads may be retried
// by the caller; writes only when the caller can prove idempotency.
func NewUnavailableError(operation string, err error) *AppError {
	e := newError(ErrorTypeUnavailable, http.StatusServiceUnavailable,
		fmt.Sprintf("store operation '%s' failed", operation))
	e.Cause = err
	e.Retryable = true
	return e
}

// NewFullError reports an activity at capacity.
func NewFullError(activityID string) *AppError {
	return newError(ErrorTypeFull, http.StatusConflict,
		fmt.Sprintf("activity '%s' is full", activityID))
}

// NewConflictError reports a write racing another in-flight change to the
// same record. The caller may retry once the other change settles.
func NewConflictError(message string) *AppError {
	e := newError(ErrorTypeConflict, http.StatusConflict, message)
	e.Retryable = true
	return e
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message)
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return newError(ErrorTypeUnauthorized, http.StatusUnauthorized, message)
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return newError(ErrorTypeForbidden, http.StatusForbidden, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message)
}

// Helper functions

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsAlreadyExists checks if an error is an occupied-key error
func IsAlreadyExists(err error) bool {
	return IsType(err, ErrorTypeAlreadyExists)
}

// IsConditionFailed checks if an error is a failed conditional write
func IsConditionFailed(err error) bool {
	return IsType(err, ErrorTypeConditionFailed)
}

// IsUnavailable checks if an error is a store failure
func IsUnavailable(err error) bool {
	return IsType(err, ErrorTypeUnavailable)
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Retryable
}

// HTTPStatus returns the status code for err, defaulting to 500.
func HTTPStatus(err error) int {
	if appErr := GetAppError(err); appErr != nil && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Wrap wraps an error with additional context, preserving the type of an
// existing AppError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if appErr := GetAppError(err); appErr != nil {
		wrapped := *appErr
		wrapped.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return &wrapped
	}

	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
