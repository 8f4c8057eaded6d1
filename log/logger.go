package log

import "context"

// Logger is the structured logging facade the engine's services depend on.
// Implementations carry the context so trace identifiers end up on every
// event.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	Fatal(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	// With returns a derived logger carrying additional structured fields.
	With(fields map[string]interface{}) Logger
}

// Noop returns a logger that drops everything, for tests.
func Noop() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (noopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (noopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (noopLogger) Error(context.Context, string, error, ...map[string]interface{}) {}
func (noopLogger) Fatal(context.Context, string, error, ...map[string]interface{}) {}
func (n noopLogger) With(map[string]interface{}) Logger                            { return n }
