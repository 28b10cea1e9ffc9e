package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces limiter counters.
const DefaultRedisPrefix = "rl"

// RedisConfig configures a Redis limiter.
type RedisConfig struct {
	// Limit is the number of executions allowed per window.
	// Default: 100
	Limit int64

	// Window is the counting window.
	// Default: 1 second
	Window time.Duration

	// Prefix namespaces counter keys. Default: DefaultRedisPrefix
	Prefix string

	// QueryTimeout bounds each round trip.
	// Default: 2 seconds
	QueryTimeout time.Duration

	// Now is the clock used to pick the window. Default: time.Now
	Now func() time.Time
}

// Redis is a fixed-window counter shared by every process using the same
// Redis. Counters live under "<prefix>:<key>:<window>" and expire with
// their window.
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Redis{client: client, cfg: cfg}, nil
}

func (r *Redis) windowKey(key string) string {
	window := r.cfg.Now().UnixNano() / int64(r.cfg.Window)
	return r.cfg.Prefix + ":" + key + ":" + strconv.FormatInt(window, 10)
}

// IsLimited reports whether the current window's count reached Limit.
func (r *Redis) IsLimited(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	n, err := r.client.Get(qctx, r.windowKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "ratelimit: read counter for %q", key)
	}
	return n >= r.cfg.Limit, nil
}

// RecordExecution increments the current window's counter.
func (r *Redis) RecordExecution(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	k := r.windowKey(key)
	_, err := r.client.TxPipelined(qctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(qctx, k)
		pipe.Expire(qctx, k, r.cfg.Window)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "ratelimit: record execution for %q", key)
	}
	return nil
}

// Clear deletes key's counters, or every counter under the prefix when key
// is empty.
func (r *Redis) Clear(ctx context.Context, key string) error {
	pattern := r.cfg.Prefix + ":*"
	if key != "" {
		pattern = r.cfg.Prefix + ":" + key + ":*"
	}

	var cursor uint64
	for {
		qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
		keys, next, err := r.client.Scan(qctx, cursor, pattern, 100).Result()
		if err == nil && len(keys) > 0 {
			err = r.client.Del(qctx, keys...).Err()
		}
		cancel()
		if err != nil {
			return errors.Wrap(err, "ratelimit: clear")
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var _ Limiter = (*Redis)(nil)
