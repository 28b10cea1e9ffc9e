package lock

import "github.com/cockroachdb/errors"

// Sentinel errors for lock operations.
var (
	// ErrInvalidKey is returned for empty lock keys.
	ErrInvalidKey = errors.New("lock: key is empty")

	// ErrInvalidTTL is returned for non-positive lock TTLs.
	ErrInvalidTTL = errors.New("lock: ttl must be positive")

	// ErrNilClient is returned when a Redis provider is built without a client.
	ErrNilClient = errors.New("lock: redis client is nil")
)
