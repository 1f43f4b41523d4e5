package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	JSONLoggingFormat    = "json"
	ConsoleLoggingFormat = "console"

	LogLevelTrace   = "trace"
	LogLevelDebug   = "debug"
	LogLevelInfo    = "info"
	LogLevelWarn    = "warn"
	LogLevelWarning = "warning"
	LogLevelError   = "error"

	ContextKeyRequestID     contextKey = "requestID"
	ContextKeyCorrelationID contextKey = "correlationID"
)

// Logger is the service-wide structured logger.
type Logger struct {
	zerolog.Logger
}

func New(level, format string) Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter builds a Logger that writes to w. Anything other than the json
// format renders through the zerolog console writer.
func NewWithWriter(level, format string, w io.Writer) Logger {
	out := w
	if !strings.EqualFold(format, JSONLoggingFormat) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return Logger{
		Logger: zerolog.New(out).
			Level(ParseLevel(level)).
			With().
			Timestamp().
			Logger(),
	}
}

// ParseLevel maps a textual level to zerolog, falling back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case LogLevelTrace:
		return zerolog.TraceLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn, LogLevelWarning:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the component name.
func (l Logger) Component(name string) Logger {
	return Logger{Logger: l.With().Str("component", name).Logger()}
}

// WithContext enriches the logger with request scoped identifiers found in ctx.
func (l Logger) WithContext(ctx context.Context) zerolog.Logger {
	lc := l.With()

	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok && requestID != "" {
		lc = lc.Str("request_id", requestID)
	}

	if correlationID, ok := ctx.Value(ContextKeyCorrelationID).(string); ok && correlationID != "" {
		lc = lc.Str("correlation_id", correlationID)
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		lc = lc.
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String())
	}

	return lc.Logger()
}

// ContextWithRequestID stores the request id used by WithContext.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// ContextWithCorrelationID stores the correlation id used by WithContext.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(ContextKeyRequestID).(string)

	return requestID
}
