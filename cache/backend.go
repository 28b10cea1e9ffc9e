package cache

import (
	"context"
	"strings"
	"time"
)

// Backend is the raw key/value store underneath Storage.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Get returns (nil, false, nil) on a miss; errors are reserved for backend failures.
// - Set with ttl <= 0 stores the value without expiry.
// - Delete is idempotent.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// MultiGetter is implemented by backends with a native bulk read.
// Missing keys are absent from the returned map.
type MultiGetter interface {
	GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error)
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
