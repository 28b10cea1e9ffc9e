package observe

import (
	"context"
	"errors"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"missing service", Config{}, ErrMissingServiceName},
		{"bad tracing exporter", Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, Exporter: "zipkin"}}, ErrInvalidTracingExporter},
		{"bad sample pct", Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, Exporter: "none", SamplePct: 2}}, ErrInvalidSamplePct},
		{"bad metrics exporter", Config{ServiceName: "s", Metrics: MetricsConfig{Enabled: true, Exporter: "statsd"}}, ErrInvalidMetricsExporter},
		{"bad log level", Config{ServiceName: "s", Logging: LoggingConfig{Enabled: true, Level: "loud"}}, ErrInvalidLogLevel},
		{"valid", Config{ServiceName: "s", Logging: LoggingConfig{Enabled: true, Level: "critical"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewObserver_Disabled(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "cachepipe-test"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	if obs.Tracer() == nil || obs.Meter() == nil || obs.Logger() == nil {
		t.Fatal("observer returned nil primitives")
	}
	if err := obs.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestNewObserver_Enabled(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "cachepipe-test",
		Tracing:     TracingConfig{Enabled: true, Exporter: "none", SamplePct: 1},
		Metrics:     MetricsConfig{Enabled: true, Exporter: "none"},
	})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	if _, err := NewMetricsSink(obs.Meter()); err != nil {
		t.Fatalf("NewMetricsSink() error = %v", err)
	}
	if err := obs.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
