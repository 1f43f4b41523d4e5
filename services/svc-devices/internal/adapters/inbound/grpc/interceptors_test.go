package grpc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/architeacher/device-inventory/pkg/logger"
	inboundgrpc "github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/grpc"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	reflectionMethod  = "/grpc.reflection.v1.ServerReflection/ServerReflectionInfo"
)

func captureContext(captured *context.Context) grpc.UnaryHandler {
	return func(ctx context.Context, _ any) (any, error) {
		*captured = ctx

		return "ok", nil
	}
}

func TestContextExtractorInterceptor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                  string
		metadata              metadata.MD
		expectedRequestID     string
		expectedCorrelationID string
	}{
		{
			name: "propagates both ids",
			metadata: metadata.Pairs(
				inboundgrpc.MetadataKeyRequestID, "req-1",
				inboundgrpc.MetadataKeyCorrelationID, "rollout-42",
			),
			expectedRequestID:     "req-1",
			expectedCorrelationID: "rollout-42",
		},
		{
			name: "first request id wins",
			metadata: metadata.Pairs(
				inboundgrpc.MetadataKeyRequestID, "first",
				inboundgrpc.MetadataKeyRequestID, "second",
			),
			expectedRequestID: "first",
		},
		{
			name:                  "generates a request id",
			metadata:              metadata.Pairs(inboundgrpc.MetadataKeyCorrelationID, "rollout-42"),
			expectedCorrelationID: "rollout-42",
		},
		{
			name: "no metadata at all",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			if tc.metadata != nil {
				ctx = metadata.NewIncomingContext(ctx, tc.metadata)
			}

			var captured context.Context
			resp, err := inboundgrpc.ContextExtractorInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: healthCheckMethod}, captureContext(&captured))
			require.NoError(t, err)
			require.Equal(t, "ok", resp)

			requestID := logger.RequestIDFromContext(captured)
			if tc.expectedRequestID != "" {
				require.Equal(t, tc.expectedRequestID, requestID)
			} else {
				_, parseErr := uuid.Parse(requestID)
				require.NoError(t, parseErr)
			}

			correlationID, _ := captured.Value(logger.ContextKeyCorrelationID).(string)
			require.Equal(t, tc.expectedCorrelationID, correlationID)
		})
	}
}

func TestContextExtractorInterceptor_ReturnsHandlerError(t *testing.T) {
	t.Parallel()

	failure := status.Error(codes.Unavailable, "database unreachable")
	failing := func(context.Context, any) (any, error) { return nil, failure }

	resp, err := inboundgrpc.ContextExtractorInterceptor()(t.Context(), nil, &grpc.UnaryServerInfo{}, failing)
	require.Nil(t, resp)
	require.ErrorIs(t, err, failure)
}

func TestRecoveryInterceptor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	interceptor := inboundgrpc.RecoveryInterceptor(logger.NewBufferedTestLogger(&buf))

	panicking := func(context.Context, any) (any, error) {
		panic("nil pool")
	}

	resp, err := interceptor(t.Context(), nil, &grpc.UnaryServerInfo{FullMethod: healthCheckMethod}, panicking)
	require.Nil(t, resp)
	require.Equal(t, codes.Internal, status.Code(err))

	entry := decodeLogLine(t, buf.String())
	require.Equal(t, "nil pool", entry["panic"])
	require.Equal(t, healthCheckMethod, entry["method"])
}

func TestAccessLogInterceptor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name             string
		config           config.AccessLog
		method           string
		metadata         metadata.MD
		handlerErr       error
		expectLog        bool
		expectedCode     string
		expectedMetadata map[string]any
	}{
		{
			name:      "disabled",
			config:    config.AccessLog{Enabled: false},
			method:    reflectionMethod,
			expectLog: false,
		},
		{
			name:      "health checks skipped by default",
			config:    config.AccessLog{Enabled: true},
			method:    healthCheckMethod,
			expectLog: false,
		},
		{
			name:      "health checks logged on request",
			config:    config.AccessLog{Enabled: true, LogHealthChecks: true},
			method:    healthCheckMethod,
			expectLog: true,
		},
		{
			name:         "failure carries the grpc code",
			config:       config.AccessLog{Enabled: true},
			method:       reflectionMethod,
			handlerErr:   status.Error(codes.Unavailable, "database unreachable"),
			expectLog:    true,
			expectedCode: codes.Unavailable.String(),
		},
		{
			name:   "metadata is redacted",
			config: config.AccessLog{Enabled: true, IncludeMetadata: true},
			method: reflectionMethod,
			metadata: metadata.Pairs(
				"authorization", "Bearer secret",
				"cookie", "session=abc",
				"x-request-id", "req-1",
			),
			expectLog: true,
			expectedMetadata: map[string]any{
				"authorization": "[REDACTED]",
				"cookie":        "[REDACTED]",
				"x-request-id":  "req-1",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			interceptor := inboundgrpc.AccessLogInterceptor(logger.NewBufferedTestLogger(&buf), tc.config)

			ctx := t.Context()
			if tc.metadata != nil {
				ctx = metadata.NewIncomingContext(ctx, tc.metadata)
			}

			handler := func(context.Context, any) (any, error) {
				if tc.handlerErr != nil {
					return nil, tc.handlerErr
				}

				return "ok", nil
			}

			_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tc.method}, handler)
			if tc.handlerErr != nil {
				require.ErrorIs(t, err, tc.handlerErr)
			} else {
				require.NoError(t, err)
			}

			if !tc.expectLog {
				require.Empty(t, buf.String())

				return
			}

			entry := decodeLogLine(t, buf.String())
			require.Equal(t, tc.method, entry["method"])
			require.Contains(t, entry, "duration")

			if tc.expectedCode != "" {
				require.Equal(t, tc.expectedCode, entry["grpc_code"])
				require.Equal(t, "gRPC request failed", entry["message"])
			} else {
				require.Equal(t, "gRPC request completed", entry["message"])
			}

			if tc.expectedMetadata != nil {
				require.Equal(t, tc.expectedMetadata, entry["metadata"])
			} else {
				require.NotContains(t, entry, "metadata")
			}
		})
	}
}

func decodeLogLine(t *testing.T, output string) map[string]any {
	t.Helper()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))

	return entry
}
