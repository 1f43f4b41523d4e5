package grpc_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/architeacher/device-inventory/pkg/logger"
	inboundgrpc "github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/grpc"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type stubDatabase struct {
	err error
}

func (s *stubDatabase) Ping(context.Context) error { return s.err }

func dialHealth(t *testing.T, reporter *inboundgrpc.HealthReporter) healthpb.HealthClient {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := inboundgrpc.NewServer(
		config.GRPCServer{Reflection: true},
		config.AccessLog{},
		reporter,
		logger.NewTestLogger(),
		noop.NewTracerProvider(),
	)

	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func TestHealthReporter_Probe(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name           string
		dbErr          error
		expectedStatus healthpb.HealthCheckResponse_ServingStatus
	}{
		{
			name:           "serving when the database answers",
			expectedStatus: healthpb.HealthCheckResponse_SERVING,
		},
		{
			name:           "not serving when the database is down",
			dbErr:          errors.New("connection refused"),
			expectedStatus: healthpb.HealthCheckResponse_NOT_SERVING,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			reporter := inboundgrpc.NewHealthReporter(&stubDatabase{err: tc.dbErr}, "svc-devices", logger.NewTestLogger())
			require.Equal(t, tc.expectedStatus, reporter.Probe(t.Context()))

			client := dialHealth(t, reporter)

			for _, service := range []string{"", "svc-devices"} {
				resp, err := client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: service})
				require.NoError(t, err)
				require.Equal(t, tc.expectedStatus, resp.GetStatus())
			}
		})
	}
}

func TestHealthReporter_RunFollowsDatabase(t *testing.T) {
	t.Parallel()

	db := &stubDatabase{}
	reporter := inboundgrpc.NewHealthReporter(db, "svc-devices", logger.NewTestLogger())
	client := dialHealth(t, reporter)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})

	go func() {
		reporter.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		resp, err := client.Check(t.Context(), &healthpb.HealthCheckRequest{})

		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	resp, err := client.Check(t.Context(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
