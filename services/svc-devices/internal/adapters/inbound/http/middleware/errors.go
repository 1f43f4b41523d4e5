package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeConflict           = "CONFLICT"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeUnsupportedMedia   = "UNSUPPORTED_MEDIA_TYPE"
)

// ErrorBody is the JSON error document shared by middleware and handlers.
type ErrorBody struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Details   any       `json:"details,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithDetails(w, status, code, message, nil)
}

func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorBody{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Details:   details,
	})
}
