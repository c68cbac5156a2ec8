package telemetry

import "context"

// NoopLogger discards everything. Useful as the default in library mode and
// in unit tests that don't care about log output.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...Field)    {}
func (NoopLogger) Info(string, ...Field)     {}
func (NoopLogger) Warn(string, ...Field)     {}
func (NoopLogger) Error(string, ...Field)    {}
func (n NoopLogger) With(...Field) Logger    { return n }

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, map[string]string)               {}
func (NoopMetrics) ObserveDuration(string, map[string]string, float64) {}

// NoopTracer returns spans that do nothing.
type NoopTracer struct{}

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                  {}
func (noopSpan) SetError(error)        {}
func (noopSpan) SetAttr(string, any)   {}
