// Package health reports the health of a cache deployment.
//
// A Checker reports a Result with a Status: Healthy, Degraded, or Unhealthy.
// The package ships checkers for the pieces a resolver depends on:
//
//   - BackendChecker writes, reads and deletes a probe entry in a cache.Backend.
//   - RedisChecker pings a Redis client and reports pool statistics.
//   - BreakerChecker reports circuits that are open or half-open.
//   - MemoryChecker reports the size of an in-process cache.MemoryBackend.
//
// Aggregator runs many checkers concurrently under one timeout:
//
//	agg := health.NewAggregator()
//	agg.Register("backend", health.NewBackendChecker(backend))
//	agg.Register("breakers", health.NewBreakerChecker(store, "user:1", "user:2"))
//
//	report := agg.Run(ctx)
//	if report.Status == health.StatusUnhealthy {
//	    ...
//	}
//
// Handler serves the same report as JSON for probes.
package health
