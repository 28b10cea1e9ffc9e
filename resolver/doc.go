// Package resolver is the entry point for cached resolutions.
//
// A Resolver owns one pipeline built from the middleware package:
//
//	Coalesce → Lookup → RateLimit → StaleOnError → Lock → CircuitBreaker → Retry → Fetch
//
// Each call to Resolve runs that pipeline once and returns a *future.Future
// for the value:
//
//	st, _ := cache.NewStorage(cache.NewMemoryBackend())
//	r, _ := resolver.New(st)
//	v, err := r.ResolveFunc(ctx, "user:42", loadUser,
//	    cache.WithTTL(time.Minute),
//	    cache.WithStaleGracePeriod(time.Hour),
//	).Wait(ctx)
//
// Get wraps Resolve for callers that want a typed value and a blocking call.
//
// Collaborators (lock provider, rate limiter, breaker store, event sink,
// logger, tracer) are injected with Options; the defaults keep all state in
// process.
package resolver
