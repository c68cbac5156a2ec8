// Package telemetry defines the logging, metrics and tracing surface used
// throughout the delegation engine. Components take a Telemetry (or its
// individual interfaces) as a constructor argument rather than reaching for
// package-level globals, so a session can be wired with Noop implementations
// in tests and concrete zap/otel implementations in cmd/delegate.
package telemetry

import "context"

// Logger is a structured, leveled logger. Implementations must be safe for
// concurrent use.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field is a single structured logging key/value pair.
type Field struct {
	Key   string
	Value any
}

// F constructs a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Metrics records counters and observations about task/model outcomes.
type Metrics interface {
	IncCounter(name string, tags map[string]string)
	ObserveDuration(name string, tags map[string]string, seconds float64)
}

// Span is a single traced operation; callers must call End exactly once.
type Span interface {
	End()
	SetError(err error)
	SetAttr(key string, value any)
}

// Tracer starts spans around suspension points: model calls, tool dispatch,
// MCP round trips.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// Telemetry bundles the three surfaces so components can take one argument.
type Telemetry struct {
	Log     Logger
	Metrics Metrics
	Tracer  Tracer
}

// Noop returns a Telemetry whose components discard everything; the default
// for library use and tests.
func Noop() Telemetry {
	return Telemetry{Log: NoopLogger{}, Metrics: NoopMetrics{}, Tracer: NoopTracer{}}
}
