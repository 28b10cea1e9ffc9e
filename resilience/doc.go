// Package resilience provides the failure-handling building blocks used by
// the resolution pipeline.
//
// # Patterns
//
//   - Circuit breaker state: BreakerRecord is a per-key Closed/Open/HalfOpen
//     state machine. BreakerStore persists records in a cache.Backend so the
//     state survives restarts when the backend is durable and is shared by
//     every process using the same backend.
//
//   - Retry backoff: RetryConfig computes exponential delays
//     (InitialDelay * Multiplier^attempt, capped at MaxDelay, optional jitter)
//     and decides which errors are retryable.
//
//   - Bulkhead: limits concurrent source fetches.
//
// # Usage
//
//	store, _ := resilience.NewBreakerStore(backend, resilience.BreakerConfig{
//	    FailureThreshold: 5,
//	    RetryTimeout:     30 * time.Second,
//	})
//
//	rec, _ := store.Update(ctx, key, func(r resilience.BreakerRecord) resilience.BreakerRecord {
//	    return r.OnFailure(time.Now(), store.Config())
//	})
package resilience
