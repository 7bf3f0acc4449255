package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*SchemaTracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return NewSchemaTracer(tp), exporter
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled() {
		t.Error("expected tracing disabled without an endpoint")
	}
	if cfg.ServiceName != "schemactl" {
		t.Errorf("expected default service name schemactl, got %s", cfg.ServiceName)
	}
	cfg.Endpoint = "localhost:4318"
	if !cfg.Enabled() {
		t.Error("expected tracing enabled with an endpoint")
	}
}

func TestProvider_ShutdownNil(t *testing.T) {
	p := &Provider{}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown of nil provider should not error: %v", err)
	}
}

func TestSchemaTracer_UpdateAndTableSpans(t *testing.T) {
	st, exporter := newTestTracer(t)

	ctx, update := st.StartUpdate(context.Background(), "mysql", 1.5)
	_, table := st.StartTable(ctx, "teams")
	table.End()
	SetSuccess(update)
	update.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "sqlschema.table.teams" {
		t.Errorf("expected table span first, got %q", spans[0].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("expected table span to be a child of the update span")
	}
	if spans[1].Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", spans[1].Status.Code)
	}

	found := false
	for _, attr := range spans[1].Attributes {
		if string(attr.Key) == "db.system" && attr.Value.AsString() == "mysql" {
			found = true
		}
	}
	if !found {
		t.Error("expected db.system attribute")
	}
}

func TestRecordError(t *testing.T) {
	st, exporter := newTestTracer(t)

	_, span := st.StartUpdate(context.Background(), "postgres", 2)
	RecordError(span, errors.New("boom"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected Error status, got %v", spans[0].Status.Code)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected an exception event")
	}
}
