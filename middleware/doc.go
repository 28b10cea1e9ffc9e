// Package middleware provides the stages of a cache resolution pipeline.
//
// The default order, outermost first, is:
//
//	Coalesce → Lookup → RateLimit → StaleOnError → Lock → CircuitBreaker → Retry → Fetch
//
// Coalesce shares one in-flight Future per key. Lookup serves fresh values,
// records the stored item on the Context for later fallback, applies
// probabilistic early expiration, and refreshes in the background for
// StrategyBackground. RateLimit, StaleOnError and Lock may serve that
// stored item instead of calling the source. CircuitBreaker and Retry guard
// the source. Fetch is the terminal handler and the only stage that writes
// fresh values to storage.
//
// Every stage is safe for concurrent use and never blocks the calling
// goroutine on another stage's Future; waits are expressed as Future chains.
package middleware
