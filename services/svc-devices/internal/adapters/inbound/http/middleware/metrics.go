package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/architeacher/device-inventory/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
)

const (
	httpMethodKey     = "http.method"
	httpRouteKey      = "http.route"
	httpStatusCodeKey = "http.status_code"

	httpRequestTotal    = "http_requests_total"
	httpRequestDuration = "http_request_duration_seconds"
	httpResponseSize    = "http_response_size_bytes"
)

// Descriptors documents the instruments this package records.
var Descriptors = metrics.Descriptors{
	httpRequestTotal:    {Description: "HTTP requests served", Unit: "1"},
	httpRequestDuration: {Description: "HTTP request latency", Unit: "s"},
	httpResponseSize:    {Description: "HTTP response body size", Unit: "By"},
}

type MetricsMiddleware struct {
	metricsClient metrics.Client
}

func NewMetricsMiddleware(metricsClient metrics.Client) *MetricsMiddleware {
	return &MetricsMiddleware{metricsClient: metricsClient}
}

func (m *MetricsMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := NewFlushableResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		attrs := []attribute.KeyValue{
			attribute.String(httpMethodKey, r.Method),
			attribute.String(httpRouteKey, routePattern(r)),
			attribute.String(httpStatusCodeKey, strconv.Itoa(wrapped.StatusCode())),
		}

		ctx := r.Context()
		m.metricsClient.Inc(ctx, httpRequestTotal, int64(1), attrs...)
		m.metricsClient.Inc(ctx, httpRequestDuration, time.Since(start).Seconds(), attrs...)
		m.metricsClient.Inc(ctx, httpResponseSize, int64(wrapped.BytesWritten()), attrs...)
	})
}

// routePattern keeps cardinality bounded by reporting the chi pattern
// instead of the raw path.
func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	return "unmatched"
}
