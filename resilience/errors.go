package resilience

import "github.com/cockroachdb/errors"

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrCircuitHalfOpen is returned when a half-open circuit already has a probe in flight.
	ErrCircuitHalfOpen = errors.New("resilience: circuit breaker is half-open and probing")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrNilBackend is returned when a BreakerStore is built without a backend.
	ErrNilBackend = errors.New("resilience: breaker backend is nil")
)
