package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/cachepipe/resilience"
)

// BreakerChecker reports the circuits of a fixed set of keys.
// Any open or half-open circuit degrades the result; a store error makes
// it unhealthy.
type BreakerChecker struct {
	store *resilience.BreakerStore
	keys  []string
	now   func() time.Time
}

// NewBreakerChecker watches keys in store.
func NewBreakerChecker(store *resilience.BreakerStore, keys ...string) *BreakerChecker {
	return &BreakerChecker{store: store, keys: keys, now: time.Now}
}

// Name returns "breakers".
func (b *BreakerChecker) Name() string {
	return "breakers"
}

// Check loads every watched record.
func (b *BreakerChecker) Check(ctx context.Context) Result {
	cfg := b.store.Config()
	now := b.now()

	details := make(map[string]any, len(b.keys))
	tripped := 0
	for _, key := range b.keys {
		rec, err := b.store.Load(ctx, key)
		if err != nil {
			return Unhealthy(fmt.Sprintf("breaker %q unreadable", key), err)
		}
		state := rec.Effective(now, cfg)
		details[key] = state.String()
		if state != resilience.StateClosed {
			tripped++
		}
	}

	if tripped > 0 {
		return Degraded(fmt.Sprintf("%d of %d circuits not closed", tripped, len(b.keys))).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d circuits closed", len(b.keys))).WithDetails(details)
}
