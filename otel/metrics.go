package otel

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/petalstream"
)

// Outcome attribute values of petalstream.streams.ended.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// MetricsHandler translates stream events into OpenTelemetry metrics.
// It counts delivered and dropped values, demand raises, subscribers and
// ended streams, and records how long each stream lived.
type MetricsHandler struct {
	valuesDelivered metric.Int64Counter
	valuesDropped   metric.Int64Counter
	demandRaised    metric.Int64Counter
	subscribers     metric.Int64UpDownCounter
	streamsEnded    metric.Int64Counter
	streamLifetime  metric.Float64Histogram

	mu      sync.Mutex
	started map[string]time.Time // stream -> first subscription
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create its instruments.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	delivered, err := meter.Int64Counter("petalstream.values.delivered",
		metric.WithDescription("Number of values delivered to at least one subscriber"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("petalstream.values.dropped",
		metric.WithDescription("Number of values dropped for lack of demand"),
	)
	if err != nil {
		return nil, err
	}

	demand, err := meter.Int64Counter("petalstream.demand.raised",
		metric.WithDescription("Number of times a stream's credit was raised"),
	)
	if err != nil {
		return nil, err
	}

	subscribers, err := meter.Int64UpDownCounter("petalstream.subscribers",
		metric.WithDescription("Number of registered subscribers"),
	)
	if err != nil {
		return nil, err
	}

	ended, err := meter.Int64Counter("petalstream.streams.ended",
		metric.WithDescription("Number of streams that reached their terminal state"),
	)
	if err != nil {
		return nil, err
	}

	lifetime, err := meter.Float64Histogram("petalstream.stream.lifetime",
		metric.WithDescription("Time from first subscription to the terminal event in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		valuesDelivered: delivered,
		valuesDropped:   dropped,
		demandRaised:    demand,
		subscribers:     subscribers,
		streamsEnded:    ended,
		streamLifetime:  lifetime,
		started:         make(map[string]time.Time),
	}, nil
}

// Observe implements petalstream.Observer.
func (h *MetricsHandler) Observe(e petalstream.StreamEvent) {
	h.Handle(e)
}

// Handle processes a stream event and records the appropriate metrics.
func (h *MetricsHandler) Handle(e petalstream.StreamEvent) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("stream", e.Stream))

	switch e.Kind {
	case petalstream.StreamSubscribed:
		h.subscribers.Add(ctx, 1, attrs)
		h.mu.Lock()
		if _, ok := h.started[e.Stream]; !ok {
			h.started[e.Stream] = e.Time
		}
		h.mu.Unlock()
	case petalstream.StreamUnsubscribed:
		h.subscribers.Add(ctx, -1, attrs)
	case petalstream.StreamDemandRaised:
		h.demandRaised.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stream", e.Stream),
			attribute.Bool("unbounded", e.Demand == petalstream.Unbounded),
		))
	case petalstream.StreamValueDelivered:
		h.valuesDelivered.Add(ctx, 1, attrs)
	case petalstream.StreamValueDropped:
		h.valuesDropped.Add(ctx, 1, attrs)
	case petalstream.StreamEnded:
		h.handleEnded(ctx, e)
	}
}

func (h *MetricsHandler) handleEnded(ctx context.Context, e petalstream.StreamEvent) {
	if e.Subscribers > 0 {
		h.subscribers.Add(ctx, -int64(e.Subscribers), metric.WithAttributes(attribute.String("stream", e.Stream)))
	}
	h.streamsEnded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stream", e.Stream),
		attribute.String("outcome", Outcome(e.Err)),
	))

	h.mu.Lock()
	start, ok := h.started[e.Stream]
	delete(h.started, e.Stream)
	h.mu.Unlock()

	if ok {
		h.streamLifetime.Record(ctx, e.Time.Sub(start).Seconds(),
			metric.WithAttributes(attribute.String("stream", e.Stream)))
	}
}

// Outcome classifies the terminal reason of a stream.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, petalstream.ErrObserverRemoved):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
