package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a *zap.Logger to Logger.
type ZapLogger struct {
	l *zap.Logger
}

// NewZapLogger wraps an existing *zap.Logger.
func NewZapLogger(l *zap.Logger) ZapLogger { return ZapLogger{l: l} }

func toZapFields(fields []Field) []zap.Field {
	zf := make([]zap.Field, len(fields))
	for i, f := range fields {
		zf[i] = zap.Any(f.Key, f.Value)
	}
	return zf
}

func (z ZapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, toZapFields(fields)...) }
func (z ZapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, toZapFields(fields)...) }
func (z ZapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, toZapFields(fields)...) }
func (z ZapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, toZapFields(fields)...) }

func (z ZapLogger) With(fields ...Field) Logger {
	return ZapLogger{l: z.l.With(toZapFields(fields)...)}
}

// NewProductionLogger builds a zap.Logger suited to cmd/delegate: JSON
// encoding, ISO8601 timestamps, Info level by default.
func NewProductionLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// OtelTracer adapts an otel.Tracer to Tracer.
type OtelTracer struct {
	t oteltrace.Tracer
}

// NewOtelTracer wraps a tracer obtained from otel.Tracer(instrumentationName).
func NewOtelTracer(name string) OtelTracer {
	return OtelTracer{t: otel.Tracer(name)}
}

func (o OtelTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := o.t.Start(ctx, name)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span oteltrace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) SetError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s otelSpan) SetAttr(key string, value any) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}
