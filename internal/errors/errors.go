// Package errors defines the error taxonomy shared by the scanner, the stores
// and the HTTP API.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/payment-scanner/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryTransport is a network, DNS or timeout failure talking to a provider
	CategoryTransport ErrorCategory = "transport"
	// CategoryParse is an unexpected response shape from a provider
	CategoryParse ErrorCategory = "parse"
	// CategoryPersistence is a store failure
	CategoryPersistence ErrorCategory = "persistence"
	// CategoryNotFound is a lookup of a nonexistent record
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryValidation is malformed user input
	CategoryValidation ErrorCategory = "validation"
	// CategoryConflict is a write that collides with an existing record
	CategoryConflict ErrorCategory = "conflict"
	// CategoryInternal is anything else
	CategoryInternal ErrorCategory = "internal"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewTransportError wraps a failed round trip to an upstream provider
func NewTransportError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusBadGateway,
		Code:       "TRANSPORT_ERROR",
		Message:    fmt.Sprintf("request to %s failed", provider),
		Details: map[string]interface{}{
			"provider": provider,
		},
		Cause: cause,
	}
}

// NewParseError wraps a provider response that could not be decoded
func NewParseError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryParse,
		StatusCode: http.StatusBadGateway,
		Code:       "PARSE_ERROR",
		Message:    fmt.Sprintf("unexpected response from %s", provider),
		Details: map[string]interface{}{
			"provider": provider,
		},
		Cause: cause,
	}
}

// NewPersistenceError wraps a store failure for the named operation
func NewPersistenceError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPersistence,
		StatusCode: http.StatusInternalServerError,
		Code:       "PERSISTENCE_ERROR",
		Message:    fmt.Sprintf("storage operation failed: %s", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewValidationError reports a single invalid field
func NewValidationError(field string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
		Message:    reason,
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInternal,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize finds the first CategorizedError in err's chain, falling back to
// an internal error.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// IsCategory reports whether err carries the given category
func IsCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category == category
	}
	return false
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsProviderError reports whether err came from talking to an upstream provider
func IsProviderError(err error) bool {
	return IsCategory(err, CategoryTransport) || IsCategory(err, CategoryParse)
}
