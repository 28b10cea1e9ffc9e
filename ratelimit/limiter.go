package ratelimit

import "context"

// Limiter decides whether executions for a key are admitted.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - IsLimited must not consume capacity; RecordExecution does.
// - Clear with an empty key resets every key.
// - Errors are reserved for backend failures.
type Limiter interface {
	IsLimited(ctx context.Context, key string) (bool, error)
	RecordExecution(ctx context.Context, key string) error
	Clear(ctx context.Context, key string) error
}
