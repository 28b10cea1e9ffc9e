package resolver

import (
	"time"

	"github.com/jonwraymond/cachepipe/cache"
	"github.com/jonwraymond/cachepipe/lock"
	"github.com/jonwraymond/cachepipe/middleware"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
	"github.com/jonwraymond/cachepipe/ratelimit"
	"github.com/jonwraymond/cachepipe/resilience"
)

// Option configures a Resolver.
type Option func(*config)

type config struct {
	logger   observe.Logger
	sink     observe.EventSink
	tracer   observe.Tracer
	now      func() time.Time
	rand     func() float64
	keyer    cache.Keyer
	defaults cache.Options

	locks       lock.Provider
	limiter     ratelimit.Limiter
	breakers    *resilience.BreakerStore
	breakerCfg  resilience.BreakerConfig
	noBreaker   bool
	retry       resilience.RetryConfig
	lockCfg     middleware.LockConfig
	fetchCfg    middleware.FetchConfig
	middlewares []pipeline.Middleware
	customChain bool
}

// WithLogger sets the logger used by every stage.
func WithLogger(l observe.Logger) Option {
	return func(c *config) { c.logger = observe.OrNop(l) }
}

// WithEventSink sets the sink receiving resolution events.
func WithEventSink(sink observe.EventSink) Option {
	return func(c *config) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithTracer sets the tracer. One span is opened per resolution.
func WithTracer(t observe.Tracer) Option {
	return func(c *config) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithClock sets the time source for freshness, breakers and events.
// The storage clock is configured separately on cache.Storage.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRand sets the uniform [0,1) source for early expiration.
func WithRand(fn func() float64) Option {
	return func(c *config) {
		if fn != nil {
			c.rand = fn
		}
	}
}

// WithKeyer sets the keyer used by KeyFor. Default: cache.DefaultKeyer.
func WithKeyer(k cache.Keyer) Option {
	return func(c *config) {
		if k != nil {
			c.keyer = k
		}
	}
}

// WithDefaultOptions sets the options Resolve starts from.
// Default: cache.DefaultOptions().
func WithDefaultOptions(opts cache.Options) Option {
	return func(c *config) { c.defaults = opts }
}

// WithLockProvider sets the provider for fetch locks and breaker probes.
// Default: an in-process lock.Memory.
func WithLockProvider(p lock.Provider) Option {
	return func(c *config) {
		if p != nil {
			c.locks = p
		}
	}
}

// WithLockConfig tunes the lock stage.
func WithLockConfig(cfg middleware.LockConfig) Option {
	return func(c *config) { c.lockCfg = cfg }
}

// WithRateLimiter enables rate limiting for resolutions that set
// cache.Options.RateLimitKey.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(c *config) { c.limiter = l }
}

// WithBreakerConfig tunes the circuit breaker. Records are kept in the
// storage backend unless WithBreakerStore is used.
func WithBreakerConfig(cfg resilience.BreakerConfig) Option {
	return func(c *config) { c.breakerCfg = cfg }
}

// WithBreakerStore sets where breaker records are persisted.
func WithBreakerStore(s *resilience.BreakerStore) Option {
	return func(c *config) { c.breakers = s }
}

// WithoutBreaker removes the circuit breaker stage.
func WithoutBreaker() Option {
	return func(c *config) { c.noBreaker = true }
}

// WithRetryConfig tunes retries of failed fetches.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *config) { c.retry = cfg }
}

// WithFetchTimeout bounds how long a source may take.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) { c.fetchCfg.Timeout = d }
}

// WithBulkhead caps concurrent source fetches across all keys.
func WithBulkhead(b *resilience.Bulkhead) Option {
	return func(c *config) { c.fetchCfg.Bulkhead = b }
}

// WithMiddlewares replaces the default chain. The terminal fetch stage is
// always appended.
func WithMiddlewares(mws ...pipeline.Middleware) Option {
	return func(c *config) {
		c.middlewares = mws
		c.customChain = true
	}
}
