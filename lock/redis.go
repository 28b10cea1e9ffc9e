package lock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only if it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig configures a Redis provider.
type RedisConfig struct {
	// Prefix namespaces lock keys as "<prefix>:<key>". Empty uses the key as-is.
	Prefix string

	// PollInterval is the blocking retry interval.
	// Default: DefaultPollInterval
	PollInterval time.Duration

	// QueryTimeout bounds each round trip.
	// Default: 2 seconds
	QueryTimeout time.Duration
}

// Redis is a distributed Provider.
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

// NewRedis creates a Redis-backed lock provider.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 2 * time.Second
	}
	return &Redis{client: client, cfg: cfg}, nil
}

func (r *Redis) redisKey(key string) string {
	if r.cfg.Prefix == "" {
		return key
	}
	return r.cfg.Prefix + ":" + key
}

// Acquire takes key for ttl with SET NX PX.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration, blocking bool) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}
	if !blocking {
		return r.tryAcquire(ctx, key, ttl)
	}
	return poll(ctx, r.cfg.PollInterval, func() (string, bool, error) {
		return r.tryAcquire(ctx, key, ttl)
	})
}

func (r *Redis) tryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()
	ok, err := r.client.SetNX(qctx, r.redisKey(key), token, ttl).Result()
	if err != nil {
		return "", false, errors.Wrapf(err, "lock: acquire %q", key)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes key if token still owns it.
func (r *Redis) Release(ctx context.Context, key, token string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if token == "" {
		return nil
	}

	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()
	if err := releaseScript.Run(qctx, r.client, []string{r.redisKey(key)}, token).Err(); err != nil {
		return errors.Wrapf(err, "lock: release %q", key)
	}
	return nil
}

var _ Provider = (*Redis)(nil)
