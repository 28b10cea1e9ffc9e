package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisBackend.
type RedisConfig struct {
	// Prefix namespaces every key as "<prefix>:<key>". Clear only removes
	// keys under the prefix.
	Prefix string

	// QueryTimeout bounds each Redis round trip.
	// Default: 2 seconds
	QueryTimeout time.Duration

	// ScanCount is the SCAN batch hint used by Clear.
	// Default: 500
	ScanCount int64
}

// RedisBackend stores entries in Redis. The caller owns the client lifecycle.
type RedisBackend struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

// NewRedisBackend creates a Redis-backed Backend.
func NewRedisBackend(client redis.UniversalClient, cfg RedisConfig) (*RedisBackend, error) {
	if client == nil {
		return nil, ErrNilBackend
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 2 * time.Second
	}
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = 500
	}
	return &RedisBackend{client: client, cfg: cfg}, nil
}

func (b *RedisBackend) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.cfg.QueryTimeout)
}

func (b *RedisBackend) prefixKey(key string) string {
	if b.cfg.Prefix == "" {
		return key
	}
	return b.cfg.Prefix + ":" + key
}

// Get reads key. redis.Nil is reported as a miss.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()

	data, err := b.client.Get(qctx, b.prefixKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set writes key. ttl <= 0 stores without expiry.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	return b.client.Set(qctx, b.prefixKey(key), value, ttl).Err()
}

// Delete removes key.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	return b.client.Del(qctx, b.prefixKey(key)).Err()
}

// Clear removes every key under the prefix, or the whole database when no
// prefix is configured.
func (b *RedisBackend) Clear(ctx context.Context) error {
	if b.cfg.Prefix == "" {
		qctx, cancel := b.queryCtx(ctx)
		defer cancel()
		return b.client.FlushDB(qctx).Err()
	}

	var cursor uint64
	for {
		qctx, cancel := b.queryCtx(ctx)
		keys, next, err := b.client.Scan(qctx, cursor, b.cfg.Prefix+":*", b.cfg.ScanCount).Result()
		if err == nil && len(keys) > 0 {
			err = b.client.Del(qctx, keys...).Err()
		}
		cancel()
		if err != nil {
			return err
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// GetMultiple reads keys with one MGET.
func (b *RedisBackend) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = b.prefixKey(k)
	}

	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	vals, err := b.client.MGet(qctx, prefixed...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

// Ping checks connectivity.
func (b *RedisBackend) Ping(ctx context.Context) error {
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	return b.client.Ping(qctx).Err()
}

var (
	_ Backend     = (*RedisBackend)(nil)
	_ MultiGetter = (*RedisBackend)(nil)
)
