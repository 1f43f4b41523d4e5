package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/architeacher/device-inventory/pkg/logger"
)

// Recovery turns a handler panic into a 500 with the standard error body.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}

				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}

				reqLogger := log.WithContext(r.Context())
				reqLogger.Error().
					Str("error", fmt.Sprint(recovered)).
					Str("stack", string(debug.Stack())).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("panic recovered")

				WriteError(w, http.StatusInternalServerError, CodeInternalError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
