package otel_test

import (
	"errors"
	"testing"
	"time"

	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petal-labs/petalstream"
	petalotel "github.com/petal-labs/petalstream/otel"
)

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

func findSpan(spans tracetest.SpanStubs, name string) *tracetest.SpanStub {
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	return nil
}

func TestTracingHandler_SpanCoversStreamLifetime(t *testing.T) {
	exporter, tp := newTestTracer()
	h := petalotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamSubscribed, Stream: "orders", Time: now, Subscribers: 1})

	if sc := h.ActiveSpanContext("orders"); !sc.IsValid() {
		t.Fatal("expected valid span context after subscription")
	}
	if got := len(exporter.GetSpans()); got != 0 {
		t.Fatalf("expected no finished spans yet, got %d", got)
	}

	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamDemandRaised, Stream: "orders", Time: now, Demand: 3})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamValueDelivered, Stream: "orders", Time: now, Delivered: 1})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamValueDelivered, Stream: "orders", Time: now, Delivered: 1})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamValueDropped, Stream: "orders", Time: now})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamEnded, Stream: "orders", Time: now.Add(time.Second), Subscribers: 1})

	if sc := h.ActiveSpanContext("orders"); sc.IsValid() {
		t.Error("expected no active span after the stream ended")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "stream:orders" {
		t.Errorf("expected span name 'stream:orders', got %q", span.Name)
	}
	if span.Status.Code != otelcodes.Ok {
		t.Errorf("expected Ok status, got %v", span.Status.Code)
	}
	if got := span.EndTime.Sub(span.StartTime); got != time.Second {
		t.Errorf("expected a 1s span, got %v", got)
	}

	attrs := map[string]any{}
	for _, attr := range span.Attributes {
		attrs[string(attr.Key)] = attr.Value.AsInterface()
	}
	if attrs["petalstream.stream"] != "orders" {
		t.Errorf("expected petalstream.stream attribute, got %v", attrs["petalstream.stream"])
	}
	if attrs["petalstream.delivered"] != int64(2) {
		t.Errorf("expected 2 delivered, got %v", attrs["petalstream.delivered"])
	}
	if attrs["petalstream.dropped"] != int64(1) {
		t.Errorf("expected 1 dropped, got %v", attrs["petalstream.dropped"])
	}
	if attrs["petalstream.outcome"] != petalotel.OutcomeCompleted {
		t.Errorf("expected completed outcome, got %v", attrs["petalstream.outcome"])
	}

	var kinds []string
	for _, ev := range span.Events {
		kinds = append(kinds, ev.Name)
	}
	if len(kinds) != 2 || kinds[0] != "stream.subscribed" || kinds[1] != "stream.demand_raised" {
		t.Errorf("expected subscribed and demand events, got %v", kinds)
	}
}

func TestTracingHandler_FailedStream(t *testing.T) {
	exporter, tp := newTestTracer()
	h := petalotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamSubscribed, Stream: "s", Time: now, Subscribers: 1})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamEnded, Stream: "s", Time: now, Err: errors.New("disk full")})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != otelcodes.Error {
		t.Errorf("expected Error status, got %v", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "disk full" {
		t.Errorf("expected status description 'disk full', got %q", spans[0].Status.Description)
	}

	foundException := false
	for _, ev := range spans[0].Events {
		if ev.Name == "exception" {
			foundException = true
		}
	}
	if !foundException {
		t.Error("expected the error to be recorded on the span")
	}
}

func TestTracingHandler_CancelledStreamIsNotAnError(t *testing.T) {
	exporter, tp := newTestTracer()
	h := petalotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamSubscribed, Stream: "s", Time: now, Subscribers: 1})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamEnded, Stream: "s", Time: now, Err: petalstream.ErrObserverRemoved})

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != otelcodes.Ok {
		t.Fatalf("expected 1 Ok span, got %+v", spans)
	}
}

func TestTracingHandler_DerivedStreamIsChild(t *testing.T) {
	exporter, tp := newTestTracer()
	h := petalotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamSubscribed, Stream: "src", Time: now, Subscribers: 1})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamSubscribed, Stream: "src.map", Time: now, Subscribers: 1})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamEnded, Stream: "src", Time: now})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamEnded, Stream: "src.map", Time: now})

	spans := exporter.GetSpans()
	parent := findSpan(spans, "stream:src")
	child := findSpan(spans, "stream:src.map")
	if parent == nil || child == nil {
		t.Fatalf("expected both spans, got %d spans", len(spans))
	}
	if child.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Error("expected the derived stream span to be a child of its upstream span")
	}
	if child.SpanContext.TraceID() != parent.SpanContext.TraceID() {
		t.Error("expected parent and child to share a trace")
	}
}

func TestTracingHandler_EndWithoutSubscription(t *testing.T) {
	exporter, tp := newTestTracer()
	h := petalotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamEnded, Stream: "lonely", Time: time.Now()})

	if spans := exporter.GetSpans(); len(spans) != 1 || spans[0].Name != "stream:lonely" {
		t.Fatalf("expected a single stream:lonely span, got %+v", spans)
	}
}

func TestTracingHandler_UnknownStreamEventsAreIgnored(t *testing.T) {
	exporter, tp := newTestTracer()
	h := petalotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamValueDelivered, Stream: "ghost", Time: now})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamDemandRaised, Stream: "ghost", Time: now, Demand: 1})
	h.Handle(petalstream.StreamEvent{Kind: petalstream.StreamUnsubscribed, Stream: "ghost", Time: now})

	if got := len(exporter.GetSpans()); got != 0 {
		t.Errorf("expected no spans, got %d", got)
	}
	if sc := h.ActiveSpanContext("ghost"); sc.IsValid() {
		t.Error("expected no active span for an unknown stream")
	}
}
