package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used for schema update spans.
const InstrumentationName = "github.com/GoCodeAlone/sqlschema"

// SchemaTracer creates spans around a schema update and its per-table
// reconciliation.
type SchemaTracer struct {
	tracer trace.Tracer
}

// NewSchemaTracer creates a SchemaTracer. If tp is nil, the global tracer
// provider is used.
func NewSchemaTracer(tp trace.TracerProvider) *SchemaTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &SchemaTracer{tracer: tp.Tracer(InstrumentationName)}
}

// StartUpdate begins the span for one schema update run.
func (s *SchemaTracer) StartUpdate(ctx context.Context, dialect string, declared float64) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "sqlschema.update",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", dialect),
			attribute.Float64("sqlschema.version.declared", declared),
		),
	)
}

// StartTable begins a child span for reconciling one table.
func (s *SchemaTracer) StartTable(ctx context.Context, table string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "sqlschema.table."+table,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("sqlschema.table", table)),
	)
}

// RecordError records an error on the given span and sets the span status.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks a span as successful.
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
