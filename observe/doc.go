// Package observe provides observability primitives for cache resolution.
//
// It offers a minimal structured Logger, an OpenTelemetry-backed Observer
// (tracer and meter providers with pluggable exporters), a Tracer that opens
// one span per resolution, and an EventSink abstraction for resolution
// outcome events (hit, miss, stale, bypass, xfetch).
//
// Everything here is observational: nothing in this package participates in
// caching decisions, and every component has a no-op form so that a missing
// logger or sink never changes behaviour.
package observe
