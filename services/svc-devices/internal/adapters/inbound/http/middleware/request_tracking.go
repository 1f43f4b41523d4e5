package middleware

import (
	"net/http"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/google/uuid"
)

const (
	RequestIDHeader     = "X-Request-Id"
	CorrelationIDHeader = "X-Correlation-Id"
)

// RequestTracking propagates request and correlation ids through the
// context and echoes them back as response headers.
func RequestTracking() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}

			correlationID := r.Header.Get(CorrelationIDHeader)
			if correlationID == "" {
				correlationID = requestID
			}

			ctx := logger.ContextWithRequestID(r.Context(), requestID)
			ctx = logger.ContextWithCorrelationID(ctx, correlationID)

			w.Header().Set(RequestIDHeader, requestID)
			w.Header().Set(CorrelationIDHeader, correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
