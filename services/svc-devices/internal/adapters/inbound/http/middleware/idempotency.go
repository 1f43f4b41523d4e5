package middleware

import (
	"bytes"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/architeacher/device-inventory/pkg/idempotency"
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
)

const (
	codeInvalidIdempotencyKey = "INVALID_IDEMPOTENCY_KEY"
	codeRequestInProgress     = "REQUEST_IN_PROGRESS"
	codeKeyReused             = "IDEMPOTENCY_KEY_REUSED"
)

// replayedHeaders are the response headers stored alongside a replayable body.
var replayedHeaders = []string{"Content-Type", "Location"}

// Idempotency stores the first successful response for an Idempotency-Key
// and replays it for retries of the same request.
func Idempotency(store ports.IdempotencyStore, cfg config.Idempotency, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(cfg.HeaderName)
			if key == "" || !slices.Contains(cfg.RequiredMethods, r.Method) {
				next.ServeHTTP(w, r)

				return
			}

			if err := idempotency.Validate(key); err != nil {
				WriteError(w, http.StatusBadRequest, codeInvalidIdempotencyKey, err.Error())

				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				WriteError(w, http.StatusBadRequest, CodeInvalidInput, "request body could not be read")

				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := idempotency.WithKey(r.Context(), key)
			r = r.WithContext(ctx)
			reqLogger := log.WithContext(ctx)
			cacheKey := idempotency.BuildCacheKey(r.Method, r.URL.Path, key)
			fingerprint := idempotency.Fingerprint(body)

			degrade := func(err error, msg string) {
				reqLogger.Warn().Err(err).Str("idempotency_key", key).Msg(msg)

				if cfg.GracefulDegraded {
					next.ServeHTTP(w, r)

					return
				}

				WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "idempotency store temporarily unavailable")
			}

			stored, err := store.Get(ctx, cacheKey)
			if err != nil {
				degrade(err, "idempotency lookup failed")

				return
			}

			if stored != nil {
				if !stored.Matches(fingerprint) {
					WriteError(w, http.StatusUnprocessableEntity, codeKeyReused,
						"idempotency key was already used with a different request body")

					return
				}

				writeStoredResponse(w, cfg, stored)

				return
			}

			acquired, err := store.Lock(ctx, cacheKey, cfg.LockTTL)
			if err != nil {
				degrade(err, "idempotency lock failed")

				return
			}

			if !acquired {
				WriteError(w, http.StatusConflict, codeRequestInProgress,
					"a request with this idempotency key is already being processed")

				return
			}

			defer func() {
				if unlockErr := store.Unlock(ctx, cacheKey); unlockErr != nil {
					reqLogger.Warn().Err(unlockErr).Str("idempotency_key", key).Msg("failed to release idempotency lock")
				}
			}()

			recorder := newResponseRecorder(w)
			next.ServeHTTP(recorder, r)

			if recorder.statusCode < http.StatusOK || recorder.statusCode >= http.StatusMultipleChoices {
				return
			}

			record := &idempotency.Record{
				StatusCode:  recorder.statusCode,
				Headers:     recorder.capturedHeaders(),
				Body:        recorder.body.Bytes(),
				Fingerprint: fingerprint,
				CreatedAt:   time.Now().UTC(),
			}

			if err := store.Set(ctx, cacheKey, record, cfg.CacheTTL); err != nil {
				reqLogger.Warn().Err(err).Str("idempotency_key", key).Msg("failed to store idempotent response")
			}
		})
	}
}

func writeStoredResponse(w http.ResponseWriter, cfg config.Idempotency, record *idempotency.Record) {
	for name, value := range record.Headers {
		w.Header().Set(name, value)
	}

	w.Header().Set(cfg.ReplayedHeader, "true")
	w.WriteHeader(record.StatusCode)
	_, _ = w.Write(record.Body)
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}

	r.statusCode = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}

	r.body.Write(b)

	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) capturedHeaders() map[string]string {
	headers := make(map[string]string, len(replayedHeaders))

	for _, name := range replayedHeaders {
		if value := r.Header().Get(name); value != "" {
			headers[name] = value
		}
	}

	return headers
}
