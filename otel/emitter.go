package otel

import (
	"log/slog"

	"github.com/petal-labs/petalstream"
)

// EnrichLogger returns logger with the trace and span IDs of the active span
// of stream. When no span is active, logger is returned unchanged.
func EnrichLogger(logger *slog.Logger, tracing *TracingHandler, stream string) *slog.Logger {
	sc := tracing.ActiveSpanContext(stream)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		"trace_id", sc.TraceID().String(),
		"span_id", sc.SpanID().String(),
	)
}

// Observer combines the handlers into one petalstream.Observer. Nil handlers
// are skipped.
func Observer(metrics *MetricsHandler, tracing *TracingHandler) petalstream.Observer {
	var observers []petalstream.Observer
	if metrics != nil {
		observers = append(observers, metrics)
	}
	if tracing != nil {
		observers = append(observers, tracing)
	}
	return petalstream.MultiObserver(observers...)
}
