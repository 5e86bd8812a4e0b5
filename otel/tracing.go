// Package otel provides OpenTelemetry integration for stream events.
package otel

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/petalstream"
)

// streamSpan is the span of one stream plus the counters reported on it
// when the stream ends.
type streamSpan struct {
	span      trace.Span
	delivered int64
	dropped   int64
}

// TracingHandler translates stream events into OpenTelemetry spans: one span
// per stream, from its first subscription to its terminal event. The span of
// a derived stream ("source.map") is a child of its upstream's span
// ("source") when that one is still active.
type TracingHandler struct {
	tracer trace.Tracer

	mu    sync.RWMutex
	spans map[string]*streamSpan // stream name -> span
}

// NewTracingHandler creates a new TracingHandler that uses the given tracer
// to create spans from stream events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer: tracer,
		spans:  make(map[string]*streamSpan),
	}
}

// Observe implements petalstream.Observer.
func (h *TracingHandler) Observe(e petalstream.StreamEvent) {
	h.Handle(e)
}

// Handle processes a stream event and creates, annotates or ends spans.
func (h *TracingHandler) Handle(e petalstream.StreamEvent) {
	switch e.Kind {
	case petalstream.StreamSubscribed:
		s := h.spanFor(e)
		s.span.AddEvent(e.Kind.String(), trace.WithTimestamp(e.Time),
			trace.WithAttributes(attribute.Int("petalstream.subscribers", e.Subscribers)))
	case petalstream.StreamUnsubscribed:
		if s := h.lookup(e.Stream); s != nil {
			s.span.AddEvent(e.Kind.String(), trace.WithTimestamp(e.Time),
				trace.WithAttributes(attribute.Int("petalstream.subscribers", e.Subscribers)))
		}
	case petalstream.StreamDemandRaised:
		if s := h.lookup(e.Stream); s != nil {
			s.span.AddEvent(e.Kind.String(), trace.WithTimestamp(e.Time),
				trace.WithAttributes(attribute.Int64("petalstream.demand", e.Demand)))
		}
	case petalstream.StreamValueDelivered:
		h.count(e.Stream, func(s *streamSpan) { s.delivered++ })
	case petalstream.StreamValueDropped:
		h.count(e.Stream, func(s *streamSpan) { s.dropped++ })
	case petalstream.StreamEnded:
		h.handleEnded(e)
	}
}

// spanFor returns the span of e.Stream, starting it if needed.
func (h *TracingHandler) spanFor(e petalstream.StreamEvent) *streamSpan {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.spans[e.Stream]; ok {
		return s
	}

	parentCtx := context.Background()
	if i := strings.LastIndex(e.Stream, "."); i > 0 {
		if parent, ok := h.spans[e.Stream[:i]]; ok {
			parentCtx = trace.ContextWithSpan(parentCtx, parent.span)
		}
	}

	_, span := h.tracer.Start(parentCtx, "stream:"+e.Stream,
		trace.WithAttributes(
			attribute.String("petalstream.stream", e.Stream),
		),
		trace.WithTimestamp(e.Time),
	)
	s := &streamSpan{span: span}
	h.spans[e.Stream] = s
	return s
}

func (h *TracingHandler) lookup(stream string) *streamSpan {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.spans[stream]
}

func (h *TracingHandler) count(stream string, f func(*streamSpan)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.spans[stream]; ok {
		f(s)
	}
}

// handleEnded ends the stream span. A stream that ended without ever being
// subscribed gets a span covering only its terminal event.
func (h *TracingHandler) handleEnded(e petalstream.StreamEvent) {
	s := h.spanFor(e)

	h.mu.Lock()
	delete(h.spans, e.Stream)
	delivered, dropped := s.delivered, s.dropped
	h.mu.Unlock()

	outcome := Outcome(e.Err)
	s.span.SetAttributes(
		attribute.Int64("petalstream.delivered", delivered),
		attribute.Int64("petalstream.dropped", dropped),
		attribute.String("petalstream.outcome", outcome),
	)

	if outcome == OutcomeFailed {
		s.span.SetStatus(codes.Error, e.Err.Error())
		s.span.RecordError(e.Err, trace.WithTimestamp(e.Time))
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End(trace.WithTimestamp(e.Time))
}

// ActiveSpanContext returns the SpanContext of the active span of stream.
// Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveSpanContext(stream string) trace.SpanContext {
	s := h.lookup(stream)
	if s == nil {
		return trace.SpanContext{}
	}
	return s.span.SpanContext()
}
