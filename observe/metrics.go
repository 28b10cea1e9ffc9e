package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsSink is an EventSink that records resolution events as
// OpenTelemetry metrics.
type MetricsSink struct {
	events  metric.Int64Counter
	latency metric.Float64Histogram
}

// NewMetricsSink creates a MetricsSink using meter.
func NewMetricsSink(meter metric.Meter) (*MetricsSink, error) {
	events, err := meter.Int64Counter(
		"cache.resolve.events",
		metric.WithDescription("Resolution outcomes by kind"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(
		"cache.resolve.latency_ms",
		metric.WithDescription("Time from resolution start to outcome in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsSink{events: events, latency: latency}, nil
}

// Dispatch records the event. Keys are deliberately not attributes; they are
// unbounded and would explode metric cardinality.
func (m *MetricsSink) Dispatch(ctx context.Context, event Event) {
	opt := metric.WithAttributes(attribute.String("cache.event", event.Kind.String()))
	m.events.Add(ctx, 1, opt)
	m.latency.Record(ctx, float64(event.Latency.Microseconds())/1000.0, opt)
}

var _ EventSink = (*MetricsSink)(nil)
