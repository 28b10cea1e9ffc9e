package lock

import (
	"context"
	"time"
)

// DefaultPollInterval is how often blocking acquisitions retry.
const DefaultPollInterval = 25 * time.Millisecond

// Provider grants exclusive, expiring locks.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Acquire returns an owner token identifying this acquisition. With
//   blocking=false it returns immediately; with blocking=true it retries
//   until acquired or ctx is done, returning ctx.Err() in the latter case.
// - Locks expire after ttl even if never released.
// - Release is idempotent and only deletes key while token still owns it,
//   so a holder whose lock expired cannot release its successor's lock.
type Provider interface {
	Acquire(ctx context.Context, key string, ttl time.Duration, blocking bool) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

// poll retries try every interval until it succeeds, fails, or ctx is done.
func poll(ctx context.Context, interval time.Duration, try func() (string, bool, error)) (string, bool, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		token, ok, err := try()
		if err != nil || ok {
			return token, ok, err
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-ticker.C:
		}
	}
}
