package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(tp.Tracer("test")), exporter
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitter_Emit(t *testing.T) {
	emitter, exporter := newRecorder(t)

	emitter.Emit(Event{
		RunID:  "run-001",
		Step:   1,
		NodeID: "nodeA",
		Msg:    MsgNodeEnd,
		Meta: map[string]interface{}{
			"attempts":    2,
			"command":     true,
			"duration_ms": int64(15),
			"latency":     250 * time.Millisecond,
			"nodes":       []string{"a", "b"},
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != MsgNodeEnd {
		t.Errorf("span name = %q, want %q", span.Name, MsgNodeEnd)
	}

	attrs := attributeMap(span.Attributes)
	tests := map[string]interface{}{
		"stategraph.run_id":      "run-001",
		"stategraph.step":        int64(1),
		"stategraph.node_id":     "nodeA",
		"stategraph.attempts":    int64(2),
		"stategraph.command":     true,
		"stategraph.duration_ms": int64(15),
		"stategraph.latency":     int64(250),
	}
	for key, want := range tests {
		if got := attrs[key]; got != want {
			t.Errorf("%s = %v (%T), want %v (%T)", key, got, got, want, want)
		}
	}
	if nodes, ok := attrs["stategraph.nodes"].([]string); !ok || len(nodes) != 2 {
		t.Errorf("stategraph.nodes = %v, want [a b]", attrs["stategraph.nodes"])
	}
	if span.Status.Code != codes.Unset {
		t.Errorf("status = %v, want Unset", span.Status.Code)
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	emitter, exporter := newRecorder(t)

	emitter.Emit(Event{
		RunID:  "run-002",
		Step:   3,
		NodeID: "flaky",
		Msg:    MsgNodeError,
		Meta:   map[string]interface{}{"error": "connection refused"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "connection refused" {
		t.Errorf("description = %q", spans[0].Status.Description)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected a recorded error event on the span")
	}
}

func TestOTelEmitter_EmitBatch(t *testing.T) {
	emitter, exporter := newRecorder(t)

	events := []Event{
		{RunID: "r", Msg: MsgRunStart},
		{RunID: "r", Step: 1, NodeID: "a", Msg: MsgNodeStart},
		{RunID: "r", Step: 1, Msg: MsgStepComplete},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 3 {
		t.Errorf("got %d spans, want 3", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := emitter.EmitBatch(ctx, events); err == nil {
		t.Error("EmitBatch with cancelled context should fail")
	}
}
