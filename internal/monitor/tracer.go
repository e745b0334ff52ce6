package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "code-interpreter"

// Tracer wraps OpenTelemetry tracing for the interpreter service.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("interpreter.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// EndSpan marks the span failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for interpreter tracing.
var (
	AttrExecID   = attribute.Key("interpreter.execution.id")
	AttrLanguage = attribute.Key("interpreter.language")
	AttrState    = attribute.Key("interpreter.state")
	AttrPackage  = attribute.Key("interpreter.package")
	AttrExitCode = attribute.Key("interpreter.exit_code")
)
