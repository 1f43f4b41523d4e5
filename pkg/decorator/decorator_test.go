package decorator

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type (
	renameThing struct{ Name string }
	countThings struct{}

	recordingMetrics struct {
		mu   sync.Mutex
		keys []string
	}
)

func (m *recordingMetrics) Inc(_ context.Context, key string, _ any, _ ...attribute.KeyValue) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys = append(m.keys, key)
}

func (m *recordingMetrics) Handler() http.Handler { return http.NotFoundHandler() }

func (m *recordingMetrics) Shutdown(context.Context) error { return nil }

func TestGenerateActionName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		value any
		want  string
	}{
		{name: "struct value", value: renameThing{}, want: "renameThing"},
		{name: "pointer", value: &renameThing{}, want: "renameThing"},
		{name: "generic instance", value: CommandHandlerFunc[renameThing, int](nil), want: "CommandHandlerFunc"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, generateActionName(tc.value))
		})
	}
}

func TestApplyCommandDecorators(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	cases := []struct {
		name        string
		handlerErr  error
		wantMetric  string
		wantStatus  codes.Code
		wantLogPart string
	}{
		{
			name:        "success is recorded",
			wantMetric:  "commands.renamething.success",
			wantStatus:  codes.Ok,
			wantLogPart: `"command":"renameThing"`,
		},
		{
			name:        "failure is recorded",
			handlerErr:  errBoom,
			wantMetric:  "commands.renamething.failure",
			wantStatus:  codes.Error,
			wantLogPart: `"error":"boom"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			metricsClient := &recordingMetrics{}
			recorder := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

			handler := ApplyCommandDecorators[renameThing, string](
				CommandHandlerFunc[renameThing, string](func(_ context.Context, cmd renameThing) (string, error) {
					return cmd.Name, tc.handlerErr
				}),
				logger.NewBufferedTestLogger(&buf),
				metricsClient,
				tp,
			)

			result, err := handler.Handle(context.Background(), renameThing{Name: "router"})
			if tc.handlerErr != nil {
				require.ErrorIs(t, err, tc.handlerErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, "router", result)
			}

			require.Contains(t, metricsClient.keys, "commands.renamething.duration")
			require.Contains(t, metricsClient.keys, tc.wantMetric)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			require.Equal(t, "command.renameThing", spans[0].Name())
			require.Equal(t, tc.wantStatus, spans[0].Status().Code)

			require.Contains(t, buf.String(), tc.wantLogPart)
		})
	}
}

func TestApplyQueryDecorators(t *testing.T) {
	t.Parallel()

	metricsClient := &recordingMetrics{}

	handler := ApplyQueryDecorators[countThings, int](
		QueryHandlerFunc[countThings, int](func(context.Context, countThings) (int, error) {
			return 42, nil
		}),
		logger.NewTestLogger(),
		metricsClient,
		nil,
	)

	result, err := handler.Execute(context.Background(), countThings{})
	require.NoError(t, err)
	require.Equal(t, 42, result)
	require.Equal(t, []string{"queries.countthings.duration", "queries.countthings.success"}, metricsClient.keys)
}
