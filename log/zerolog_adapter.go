package log

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// zerologAdapter implements Logger on top of zerolog.
type zerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a Logger writing JSON lines to stderr, or
// human-readable console output when pretty is set.
func NewZerologAdapter(level zerolog.Level, pretty bool) Logger {
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	zlog := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &zerologAdapter{logger: zlog}
}

// NewZerologAdapterWithWriter is the writer-injected variant used by tests.
func NewZerologAdapterWithWriter(out io.Writer, level zerolog.Level) Logger {
	zlog := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &zerologAdapter{logger: zlog}
}

// ParseLevel maps a configuration string onto a zerolog level, defaulting to
// info for anything unrecognized.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// withTrace attaches the active span's identifiers so log lines correlate
// with traces.
func withTrace(ctx context.Context, event *zerolog.Event) *zerolog.Event {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event = event.Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String())
	}
	return event
}

func (z *zerologAdapter) emit(ctx context.Context, event *zerolog.Event, msg string, fields []map[string]interface{}) {
	event = withTrace(ctx, event)
	for _, f := range fields {
		event = event.Fields(f)
	}
	event.Msg(msg)
}

func (z *zerologAdapter) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	z.emit(ctx, z.logger.Debug(), msg, fields)
}

func (z *zerologAdapter) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	z.emit(ctx, z.logger.Info(), msg, fields)
}

func (z *zerologAdapter) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	z.emit(ctx, z.logger.Warn(), msg, fields)
}

func (z *zerologAdapter) Error(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	z.emit(ctx, z.logger.Error().Err(err), msg, fields)
}

func (z *zerologAdapter) Fatal(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	z.emit(ctx, z.logger.Fatal().Err(err), msg, fields)
}

// With returns a derived logger. Trace identifiers stay per-call so they are
// always current.
func (z *zerologAdapter) With(fields map[string]interface{}) Logger {
	return &zerologAdapter{logger: z.logger.With().Fields(fields).Logger()}
}
