package response

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mysafehouse/access-api/internal/domain"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error: message,
		Code:  code,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

// Common error codes
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeGone            = "GONE"
	CodeInvalidCode     = "INVALID_CODE"
	CodeTooManyAttempts = "TOO_MANY_ATTEMPTS"
	CodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// FromError maps a service error onto the HTTP surface. Unclassified errors
// become opaque 500s so internal detail never leaks to callers.
func FromError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	msg := "Internal server error"
	kind := domain.KindUnavailable
	if errors.As(err, &derr) {
		kind = derr.Kind
		msg = derr.Message
	}

	switch kind {
	case domain.KindInvalidInput:
		WriteError(w, http.StatusBadRequest, msg, CodeInvalidInput)
	case domain.KindForbidden:
		WriteError(w, http.StatusForbidden, msg, CodeForbidden)
	case domain.KindNotFound:
		WriteError(w, http.StatusNotFound, msg, CodeNotFound)
	case domain.KindConflict, domain.KindInvalidTransition:
		WriteError(w, http.StatusConflict, msg, CodeConflict)
	case domain.KindGone:
		WriteError(w, http.StatusGone, msg, CodeGone)
	case domain.KindInvalidCode:
		WriteError(w, http.StatusBadRequest, msg, CodeInvalidCode)
	case domain.KindTooManyAttempts:
		WriteError(w, http.StatusTooManyRequests, msg, CodeTooManyAttempts)
	default:
		WriteError(w, http.StatusInternalServerError, "Internal server error", CodeInternalError)
	}
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}
