package config

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/cachepipe/cache"
	"github.com/jonwraymond/cachepipe/health"
	"github.com/jonwraymond/cachepipe/lock"
	"github.com/jonwraymond/cachepipe/middleware"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/ratelimit"
	"github.com/jonwraymond/cachepipe/resilience"
	"github.com/jonwraymond/cachepipe/resolver"
)

// Runtime is everything Build wires from a Config.
type Runtime struct {
	Resolver *resolver.Resolver
	Storage  *cache.Storage
	Backend  cache.Backend

	// Redis is the shared client when backend.type is redis, else nil.
	Redis redis.UniversalClient

	Observer observe.Observer
	Logger   observe.Logger
	Health   *health.Aggregator

	ownsRedis bool
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	redis   redis.UniversalClient
	now     func() time.Time
	resolve []resolver.Option
}

// WithRedisClient uses client instead of dialing backend.redis.addrs.
// The caller keeps ownership; Runtime.Close does not close it.
func WithRedisClient(client redis.UniversalClient) BuildOption {
	return func(o *buildOptions) {
		o.redis = client
	}
}

// WithBuildClock sets the clock shared by storage, limiters and the resolver.
func WithBuildClock(now func() time.Time) BuildOption {
	return func(o *buildOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithResolverOptions appends options applied after the ones derived from cfg.
func WithResolverOptions(opts ...resolver.Option) BuildOption {
	return func(o *buildOptions) {
		o.resolve = append(o.resolve, opts...)
	}
}

// Build wires a Runtime from cfg, applying defaults to unset fields first.
// Call Close when done.
func Build(ctx context.Context, cfg *Config, opts ...BuildOption) (_ *Runtime, err error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := buildOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	obs, err := observe.NewObserver(ctx, cfg.observeConfig())
	if err != nil {
		return nil, errors.Wrap(err, "config: observer")
	}
	rt := &Runtime{Observer: obs, Logger: obs.Logger()}
	defer func() {
		if err != nil {
			_ = obs.Shutdown(context.WithoutCancel(ctx))
			if rt.ownsRedis {
				_ = rt.Redis.Close()
			}
		}
	}()

	if cfg.Backend.Type == "redis" {
		rt.Redis = o.redis
		if rt.Redis == nil {
			rt.Redis = redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs:    cfg.Backend.Redis.Addrs,
				Username: cfg.Backend.Redis.Username,
				Password: cfg.Backend.Redis.Password,
				DB:       cfg.Backend.Redis.DB,
			})
			rt.ownsRedis = true
		}
	}

	if rt.Backend, err = cfg.backend(rt.Redis, o.now); err != nil {
		return nil, err
	}
	serializer, err := cfg.serializer()
	if err != nil {
		return nil, err
	}
	rt.Storage, err = cache.NewStorage(rt.Backend,
		cache.WithSerializer(serializer),
		cache.WithLogger(rt.Logger),
		cache.WithClock(o.now),
	)
	if err != nil {
		return nil, err
	}

	ropts, err := cfg.resolverOptions(rt, obs, o.now)
	if err != nil {
		return nil, err
	}
	rt.Resolver, err = resolver.New(rt.Storage, append(ropts, o.resolve...)...)
	if err != nil {
		return nil, err
	}

	rt.Health = cfg.healthAggregator(rt)
	return rt, nil
}

// Close drains background refreshes, flushes telemetry and closes a Redis
// client Build dialed itself.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.Resolver.Drain()
	err := rt.Observer.Shutdown(ctx)
	if rt.ownsRedis {
		err = errors.CombineErrors(err, rt.Redis.Close())
	}
	return err
}

func (c *Config) observeConfig() observe.Config {
	oc := observe.Config{ServiceName: c.Service, Version: c.Version}
	oc.Tracing.Enabled = c.Observe.Tracing.Enabled
	oc.Tracing.Exporter = c.Observe.Tracing.Exporter
	oc.Tracing.SamplePct = c.Observe.Tracing.SamplePct
	oc.Metrics.Enabled = c.Observe.Metrics.Enabled
	oc.Metrics.Exporter = c.Observe.Metrics.Exporter
	oc.Logging.Enabled = c.Observe.Logging.Enabled
	oc.Logging.Level = c.Observe.Logging.Level
	return oc
}

func (c *Config) backend(client redis.UniversalClient, now func() time.Time) (cache.Backend, error) {
	if c.Backend.Type == "redis" {
		return cache.NewRedisBackend(client, cache.RedisConfig{
			Prefix:       c.Backend.Redis.Prefix,
			QueryTimeout: c.Backend.Redis.QueryTimeout.Std(),
		})
	}
	return cache.NewMemoryBackend(cache.WithMemoryClock(now)), nil
}

func (c *Config) serializer() (cache.Serializer, error) {
	var s cache.Serializer = cache.MsgpackSerializer{}
	if c.Backend.Serializer == "json" {
		s = cache.JSONSerializer{}
	}
	if c.Backend.EncryptionKey == "" {
		return s, nil
	}
	key, err := hex.DecodeString(c.Backend.EncryptionKey)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, "backend.encryption_key must be hex")
	}
	return cache.NewEncryptingSerializer(s, key)
}

func (c *Config) resolverOptions(rt *Runtime, obs observe.Observer, now func() time.Time) ([]resolver.Option, error) {
	sinks := []observe.EventSink{}
	if c.Observe.Metrics.Enabled {
		ms, err := observe.NewMetricsSink(obs.Meter())
		if err != nil {
			return nil, errors.Wrap(err, "config: metrics sink")
		}
		sinks = append(sinks, ms)
	}
	if c.Events.RedisChannel != "" {
		rs, err := observe.NewRedisEventSink(rt.Redis, c.Events.RedisChannel, rt.Logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, rs)
	}

	opts := []resolver.Option{
		resolver.WithLogger(rt.Logger),
		resolver.WithTracer(obs.Tracer()),
		resolver.WithEventSink(observe.MultiSink(sinks...)),
		resolver.WithClock(now),
		resolver.WithDefaultOptions(c.CacheOptions()),
		resolver.WithLockConfig(middleware.LockConfig{
			TTL:          c.Lock.TTL.Std(),
			WaitTimeout:  c.Lock.WaitTimeout.Std(),
			PollInterval: c.Lock.PollInterval.Std(),
		}),
		resolver.WithRetryConfig(resilience.RetryConfig{
			MaxRetries:   c.Retry.MaxRetries,
			InitialDelay: c.Retry.InitialDelay.Std(),
			MaxDelay:     c.Retry.MaxDelay.Std(),
			Multiplier:   c.Retry.Multiplier,
			Jitter:       c.Retry.Jitter,
		}),
		resolver.WithFetchTimeout(c.Fetch.Timeout.Std()),
	}

	if c.Lock.Backend == "redis" {
		lp, err := lock.NewRedis(rt.Redis, lock.RedisConfig{
			Prefix:       c.Backend.Redis.Prefix,
			PollInterval: c.Lock.PollInterval.Std(),
			QueryTimeout: c.Backend.Redis.QueryTimeout.Std(),
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, resolver.WithLockProvider(lp))
	} else {
		opts = append(opts, resolver.WithLockProvider(lock.NewMemory(
			lock.WithClock(now),
			lock.WithPollInterval(c.Lock.PollInterval.Std()),
		)))
	}

	limiter, err := c.limiter(rt.Redis, now)
	if err != nil {
		return nil, err
	}
	if limiter != nil {
		opts = append(opts, resolver.WithRateLimiter(limiter))
	}

	if *c.Breaker.Enabled {
		opts = append(opts, resolver.WithBreakerConfig(resilience.BreakerConfig{
			FailureThreshold: c.Breaker.FailureThreshold,
			RetryTimeout:     c.Breaker.RetryTimeout.Std(),
			ProbeLockTTL:     c.Breaker.ProbeLockTTL.Std(),
		}))
	} else {
		opts = append(opts, resolver.WithoutBreaker())
	}

	if c.Fetch.MaxConcurrent > 0 {
		opts = append(opts, resolver.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: c.Fetch.MaxConcurrent,
			MaxWait:       c.Fetch.MaxWait.Std(),
		})))
	}
	return opts, nil
}

func (c *Config) limiter(client redis.UniversalClient, now func() time.Time) (ratelimit.Limiter, error) {
	rl := c.RateLimit
	switch rl.Type {
	case "token_bucket":
		return ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{Rate: rl.Rate, Burst: rl.Burst, Now: now}), nil
	case "fixed_interval":
		return ratelimit.NewFixedInterval(rl.Interval.Std(), now), nil
	case "redis":
		prefix := ratelimit.DefaultRedisPrefix
		if c.Backend.Redis.Prefix != "" {
			prefix = c.Backend.Redis.Prefix + ":" + prefix
		}
		return ratelimit.NewRedis(client, ratelimit.RedisConfig{
			Limit:        rl.Limit,
			Window:       rl.Window.Std(),
			Prefix:       prefix,
			QueryTimeout: c.Backend.Redis.QueryTimeout.Std(),
			Now:          now,
		})
	default:
		return nil, nil
	}
}

func (c *Config) healthAggregator(rt *Runtime) *health.Aggregator {
	agg := health.NewAggregator(health.AggregatorConfig{Timeout: c.Health.Timeout.Std()})
	agg.Register("backend", health.NewBackendChecker(rt.Backend))
	if rt.Redis != nil {
		agg.Register("redis", health.NewRedisChecker(rt.Redis))
	}
	if mem, ok := rt.Backend.(*cache.MemoryBackend); ok {
		agg.Register("memory", health.NewMemoryChecker(mem, health.MemoryCheckerConfig{MaxEntries: c.Health.MaxEntries}))
	}
	if store := rt.Resolver.Breakers(); store != nil && len(c.Health.BreakerKeys) > 0 {
		agg.Register("breakers", health.NewBreakerChecker(store, c.Health.BreakerKeys...))
	}
	return agg
}
