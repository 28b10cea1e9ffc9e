package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func staticChecker(name string, status Status) Checker {
	return NewCheckerFunc(name, func(context.Context) Result {
		return Result{Status: status, Message: name}
	})
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestNewAggregator_Defaults(t *testing.T) {
	agg := NewAggregator()
	if agg.config.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", agg.config.Timeout)
	}
}

func TestAggregator_RegisterOrder(t *testing.T) {
	agg := NewAggregator()
	agg.Register("b", staticChecker("b", StatusHealthy))
	agg.Register("a", staticChecker("a", StatusHealthy))
	agg.Register("b", staticChecker("b", StatusDegraded))

	names := agg.CheckerNames()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Fatalf("CheckerNames() = %v, want [b a]", names)
	}

	agg.Unregister("b")
	if names := agg.CheckerNames(); len(names) != 1 || names[0] != "a" {
		t.Errorf("after Unregister, CheckerNames() = %v, want [a]", names)
	}
}

func TestAggregator_Run(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"none", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"one unhealthy", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(AggregatorConfig{Concurrency: 2})
			for i, s := range tt.statuses {
				name := string(rune('a' + i))
				agg.Register(name, staticChecker(name, s))
			}
			report := agg.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("Status = %v, want %v", report.Status, tt.want)
			}
			if len(report.Results) != len(tt.statuses) {
				t.Errorf("len(Results) = %d, want %d", len(report.Results), len(tt.statuses))
			}
		})
	}
}

func TestAggregator_RunConcurrently(t *testing.T) {
	agg := NewAggregator()
	var running, peak atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		agg.Register(name, NewCheckerFunc(name, func(context.Context) Result {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return Healthy("ok")
		}))
	}

	agg.Run(context.Background())
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want >= 2", peak.Load())
	}
}

func TestAggregator_Timeout(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Timeout: 20 * time.Millisecond})
	agg.Register("slow", NewCheckerFunc("slow", func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return Healthy("late")
	}))

	report := agg.Run(context.Background())
	r := report.Results["slow"]
	if r.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", r.Status)
	}
	if !errors.Is(r.Error, ErrCheckTimeout) {
		t.Errorf("Error = %v, want ErrCheckTimeout", r.Error)
	}
}

func TestAggregator_Check(t *testing.T) {
	agg := NewAggregator()
	agg.Register("a", staticChecker("a", StatusDegraded))

	r, err := agg.Check(context.Background(), "a")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if r.Status != StatusDegraded {
		t.Errorf("Status = %v, want degraded", r.Status)
	}
	if r.Duration <= 0 && r.Timestamp.IsZero() {
		t.Error("expected Duration or Timestamp to be set")
	}

	if _, err := agg.Check(context.Background(), "missing"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("Check(missing) error = %v, want ErrCheckerNotFound", err)
	}
}

func TestAggregator_Checker(t *testing.T) {
	agg := NewAggregator()
	agg.Register("a", staticChecker("a", StatusHealthy))
	agg.Register("b", staticChecker("b", StatusDegraded))

	c := agg.Checker()
	if c.Name() != "aggregate" {
		t.Errorf("Name() = %q, want aggregate", c.Name())
	}
	r := c.Check(context.Background())
	if r.Status != StatusDegraded {
		t.Errorf("Status = %v, want degraded", r.Status)
	}
	if r.Details["b"] != "degraded" {
		t.Errorf("Details[b] = %v, want degraded", r.Details["b"])
	}
}
