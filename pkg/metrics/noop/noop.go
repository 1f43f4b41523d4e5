// Package noop provides a metrics client that records nothing, used in tests
// and when metrics collection is disabled.
package noop

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
)

type MetricsClient struct{}

func NewMetricsClient() MetricsClient {
	return MetricsClient{}
}

func (MetricsClient) Inc(context.Context, string, any, ...attribute.KeyValue) {}

func (MetricsClient) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (MetricsClient) Shutdown(context.Context) error {
	return nil
}
