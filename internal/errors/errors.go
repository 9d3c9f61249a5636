// Package errors provides structured error handling with context propagation and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeConflict indicates resource conflict (HTTP 409)
	TypeConflict ErrorType = "conflict"
	// TypeQuota indicates the per-user instance cap was reached (HTTP 429)
	TypeQuota ErrorType = "quota"
	// TypeUpstreamTimeout indicates the compute endpoint missed a deadline (HTTP 408)
	TypeUpstreamTimeout ErrorType = "upstream_timeout"
	// TypeUpstreamRejected indicates the compute endpoint refused a request (HTTP 502)
	TypeUpstreamRejected ErrorType = "upstream_rejected"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeQuota:
		return http.StatusTooManyRequests
	case TypeUpstreamTimeout:
		return http.StatusRequestTimeout
	case TypeUpstreamRejected:
		return http.StatusBadGateway
	case TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{
		Type:    TypeValidation,
		Message: message,
		Context: make(map[string]any),
	}
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return &Error{
		Type:    TypeNotFound,
		Message: message,
		Context: make(map[string]any),
	}
}

// ConflictError creates a new conflict error (HTTP 409).
func ConflictError(message string) *Error {
	return &Error{
		Type:    TypeConflict,
		Message: message,
		Context: make(map[string]any),
	}
}

// QuotaError creates a new quota error (HTTP 429).
func QuotaError(message string) *Error {
	return &Error{
		Type:    TypeQuota,
		Message: message,
		Context: make(map[string]any),
	}
}

// UpstreamTimeoutError creates a new upstream-timeout error (HTTP 408).
func UpstreamTimeoutError(message string, cause error) *Error {
	return &Error{
		Type:    TypeUpstreamTimeout,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// UpstreamRejectedError creates a new upstream-rejected error (HTTP 502).
func UpstreamRejectedError(message string, cause error) *Error {
	return &Error{
		Type:    TypeUpstreamRejected,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"detail"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged. Domain sentinel errors
// map to their canonical types; anything else becomes an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrAppNotFound),
		errors.Is(err, domain.ErrPageNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, domain.ErrQuotaExceeded):
		return QuotaError(err.Error())
	case errors.Is(err, domain.ErrAlreadyConnected):
		return ConflictError(err.Error())
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return UpstreamTimeoutError("the compute endpoint did not answer in time -- try again later", err)
	case errors.Is(err, domain.ErrUpstreamRejected):
		return UpstreamRejectedError("the compute endpoint rejected the request", err)
	}

	return InternalError("internal server error", err)
}
