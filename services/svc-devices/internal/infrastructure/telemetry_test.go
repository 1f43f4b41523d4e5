package infrastructure

import (
	"bytes"
	"context"
	"testing"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/stretchr/testify/require"
)

func TestCreateExporter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		exporter string
		wantErr  bool
	}{
		{name: "stdout", exporter: "stdout"},
		{name: "stdout is case insensitive", exporter: "StdOut"},
		{name: "grpc", exporter: "grpc"},
		{name: "unknown", exporter: "zipkin", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			exporter, err := createExporter(context.Background(), config.Telemetry{
				ExporterType: tc.exporter,
				OTLPEndpoint: "localhost:4317",
			}, &bytes.Buffer{})
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.NoError(t, exporter.Shutdown(context.Background()))
		})
	}
}

func TestNewNoopTracerProvider(t *testing.T) {
	t.Parallel()

	_, span := NewNoopTracerProvider().Tracer("test").Start(context.Background(), "noop")
	defer span.End()

	require.False(t, span.SpanContext().IsValid())
}
