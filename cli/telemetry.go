package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/petal-labs/petalstream"
	petalotel "github.com/petal-labs/petalstream/otel"
)

const instrumentationName = "github.com/petal-labs/petalstream"

// telemetry holds the optional otel providers of a run.
type telemetry struct {
	reader  *sdkmetric.ManualReader
	metrics *petalotel.MetricsHandler
	tracing *petalotel.TracingHandler

	shutdowns []func(context.Context) error
}

func newTelemetry(cmd *cobra.Command) (*telemetry, error) {
	t := &telemetry{}

	if enabled, _ := cmd.Flags().GetBool("metrics"); enabled {
		t.reader = sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(t.reader))
		t.shutdowns = append(t.shutdowns, mp.Shutdown)

		h, err := petalotel.NewMetricsHandler(mp.Meter(instrumentationName))
		if err != nil {
			return nil, fmt.Errorf("creating metrics handler: %w", err)
		}
		t.metrics = h
	}

	if endpoint, _ := cmd.Flags().GetString("otlp-endpoint"); endpoint != "" {
		exporter, err := otlptracehttp.New(cmd.Context(),
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		t.shutdowns = append(t.shutdowns, tp.Shutdown)
		t.tracing = petalotel.NewTracingHandler(tp.Tracer(instrumentationName))
	}

	return t, nil
}

func (t *telemetry) metricsEnabled() bool { return t.metrics != nil }

// observer returns nil when no telemetry is enabled.
func (t *telemetry) observer() petalstream.Observer {
	if t.metrics == nil && t.tracing == nil {
		return nil
	}
	return petalotel.Observer(t.metrics, t.tracing)
}

// shutdown flushes pending spans.
func (t *telemetry) shutdown(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, fn := range t.shutdowns {
		if err := fn(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
}

// printSummary writes one line per instrument: the total of a sum, or the
// count and mean of a histogram.
func (t *telemetry) printSummary(ctx context.Context, w io.Writer) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		fmt.Fprintf(w, "collecting metrics: %v\n", err)
		return
	}

	var lines []string
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				lines = append(lines, fmt.Sprintf("%s\t%d", m.Name, total))
			case metricdata.Histogram[float64]:
				var (
					count uint64
					sum   float64
				)
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				mean := 0.0
				if count > 0 {
					mean = sum / float64(count)
				}
				lines = append(lines, fmt.Sprintf("%s\tcount=%d mean=%.6f%s", m.Name, count, mean, m.Unit))
			}
		}
	}
	sort.Strings(lines)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE")
	for _, line := range lines {
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()
}
