package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetricsSink_RecordsEvents(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	sink, err := NewMetricsSink(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}

	ctx := context.Background()
	sink.Dispatch(ctx, Event{Kind: EventHit, Key: "a", Latency: time.Millisecond})
	sink.Dispatch(ctx, Event{Kind: EventHit, Key: "b", Latency: time.Millisecond})
	sink.Dispatch(ctx, Event{Kind: EventMiss, Key: "c", Latency: 5 * time.Millisecond})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	events := findMetric(rm, "cache.resolve.events")
	if events == nil {
		t.Fatal("cache.resolve.events metric not found")
	}
	sum, ok := events.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", events.Data)
	}

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("cache.event")
		counts[v.AsString()] = dp.Value
	}
	if counts["hit"] != 2 || counts["miss"] != 1 {
		t.Errorf("counts = %v, want hit=2 miss=1", counts)
	}

	if findMetric(rm, "cache.resolve.latency_ms") == nil {
		t.Error("cache.resolve.latency_ms metric not found")
	}
}
