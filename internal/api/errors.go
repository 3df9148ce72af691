package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/logging"
	"github.com/payment-scanner/internal/types"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondServiceError maps a categorized error onto the error envelope.
// Server-side failures are logged and their details withheld.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"category": catErr.Category,
		}).Error("Request failed")
		message := "An internal error occurred"
		if catErr.Category == apperrors.CategoryPersistence {
			message = "Storage is unavailable"
		}
		respondError(w, catErr.StatusCode, catErr.Code, message, nil)
		return
	}
	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses a JSON request body into v.
func parseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewValidationError("body", "request body is required")
		}
		return apperrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)
