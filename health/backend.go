package health

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/cachepipe/cache"
)

// ProbeKeyPrefix namespaces probe entries written by BackendChecker.
const ProbeKeyPrefix = "health:probe:"

// BackendChecker round-trips a probe entry through a cache.Backend.
// A round trip slower than SlowThreshold is reported as degraded.
type BackendChecker struct {
	backend       cache.Backend
	name          string
	SlowThreshold time.Duration
}

// NewBackendChecker creates a checker with a 250ms slow threshold.
func NewBackendChecker(backend cache.Backend) *BackendChecker {
	return &BackendChecker{backend: backend, name: "backend", SlowThreshold: 250 * time.Millisecond}
}

// Name returns "backend".
func (b *BackendChecker) Name() string {
	return b.name
}

// Check writes, reads back and deletes a short-lived probe entry.
func (b *BackendChecker) Check(ctx context.Context) Result {
	if b.backend == nil {
		return Unhealthy("no backend configured", cache.ErrNilBackend)
	}

	key := ProbeKeyPrefix + uuid.NewString()
	want := []byte(key)
	start := time.Now()

	if err := b.backend.Set(ctx, key, want, time.Minute); err != nil {
		return Unhealthy("probe write failed", err)
	}
	got, ok, err := b.backend.Get(ctx, key)
	if err != nil {
		return Unhealthy("probe read failed", err)
	}
	if !ok || !bytes.Equal(got, want) {
		return Unhealthy("probe read returned wrong value", ErrProbeMismatch)
	}
	if err := b.backend.Delete(ctx, key); err != nil {
		return Degraded("probe delete failed").WithDetails(map[string]any{"error": err.Error()})
	}

	latency := time.Since(start)
	details := map[string]any{"round_trip": latency.String()}
	if b.SlowThreshold > 0 && latency > b.SlowThreshold {
		return Degraded("backend slow").WithDetails(details)
	}
	return Healthy("backend reachable").WithDetails(details)
}
