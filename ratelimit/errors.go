package ratelimit

import "github.com/cockroachdb/errors"

// Sentinel errors for rate limiting.
var (
	// ErrInvalidKey is returned for empty limiter keys.
	ErrInvalidKey = errors.New("ratelimit: key is empty")

	// ErrNilClient is returned when a Redis limiter is built without a client.
	ErrNilClient = errors.New("ratelimit: redis client is nil")
)
