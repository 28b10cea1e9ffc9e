package middleware

import (
	"context"

	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/lock"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
	"github.com/jonwraymond/cachepipe/resilience"
)

// ProbeKeyPrefix namespaces the half-open probe lock.
const ProbeKeyPrefix = "cb-probe:"

// CircuitBreaker guards the source with a per-key breaker persisted in a
// resilience.BreakerStore.
//
// Open circuits reject without calling next. Once RetryTimeout elapses the
// circuit is half-open and exactly one caller, the holder of the probe lock,
// passes through; its outcome closes or reopens the circuit. Breaker store
// errors are logged and the call is let through.
type CircuitBreaker struct {
	settings
	store *resilience.BreakerStore
	locks lock.Provider
}

// NewCircuitBreaker creates the stage. A nil locks falls back to an
// in-process lock.Memory, which only keeps probes exclusive within this
// process.
func NewCircuitBreaker(store *resilience.BreakerStore, locks lock.Provider, opts ...Option) *CircuitBreaker {
	s := newSettings(opts)
	if locks == nil {
		locks = lock.NewMemory(lock.WithClock(s.now))
	}
	return &CircuitBreaker{settings: s, store: store, locks: locks}
}

// ProbeKey returns the probe lock name for key.
func ProbeKey(key string) string {
	return ProbeKeyPrefix + key
}

// Handle implements pipeline.Middleware.
func (b *CircuitBreaker) Handle(ctx context.Context, cc *pipeline.Context, next pipeline.Handler) *future.Future {
	if b.store == nil {
		return next(ctx, cc)
	}
	cfg := b.store.Config()

	rec, err := b.store.Load(ctx, cc.Key)
	if err != nil {
		b.logger.Warn(ctx, "cache.breaker.load_failed", observe.F("key", cc.Key), observe.Err(err))
		return b.track(ctx, cc, next, true)
	}

	switch rec.Effective(b.now(), cfg) {
	case resilience.StateOpen:
		b.logger.Debug(ctx, "cache.breaker.rejected", observe.F("key", cc.Key), observe.F("state", "open"))
		return future.Rejected(pipeline.NewError(pipeline.KindCircuitOpen, cc.Key, resilience.ErrCircuitOpen))

	case resilience.StateHalfOpen:
		probe := ProbeKey(cc.Key)
		token, acquired, err := b.locks.Acquire(ctx, probe, cfg.ProbeLockTTL, false)
		if err != nil || !acquired {
			if err != nil {
				b.logger.Warn(ctx, "cache.breaker.probe_lock_failed", observe.F("key", cc.Key), observe.Err(err))
			}
			return future.Rejected(pipeline.NewError(pipeline.KindCircuitHalfOpen, cc.Key, resilience.ErrCircuitHalfOpen))
		}
		if rec.State == resilience.StateOpen {
			if _, err := b.store.Update(ctx, cc.Key, func(r resilience.BreakerRecord) resilience.BreakerRecord {
				if r.State == resilience.StateOpen {
					r.State = resilience.StateHalfOpen
				}
				return r
			}); err != nil {
				b.logger.Warn(ctx, "cache.breaker.save_failed", observe.F("key", cc.Key), observe.Err(err))
			}
		}
		b.logger.Info(ctx, "cache.breaker.probe", observe.F("key", cc.Key))
		return b.track(ctx, cc, next, true).Finally(func() {
			if err := b.locks.Release(context.WithoutCancel(ctx), probe, token); err != nil {
				b.logger.Warn(ctx, "cache.breaker.probe_release_failed", observe.F("key", cc.Key), observe.Err(err))
			}
		})

	default:
		return b.track(ctx, cc, next, rec.FailureCount > 0)
	}
}

// track runs next and records its outcome. Successes are only written when
// the record is not already clean.
func (b *CircuitBreaker) track(ctx context.Context, cc *pipeline.Context, next pipeline.Handler, dirty bool) *future.Future {
	return future.Try(func() *future.Future { return next(ctx, cc) }).Then(
		func(value any) (any, error) {
			if dirty {
				b.update(ctx, cc.Key, resilience.BreakerRecord.OnSuccess, "closed")
			}
			return value, nil
		},
		func(err error) (any, error) {
			cfg := b.store.Config()
			now := b.now()
			b.update(ctx, cc.Key, func(r resilience.BreakerRecord) resilience.BreakerRecord {
				return r.OnFailure(now, cfg)
			}, "failure")
			return nil, err
		},
	)
}

func (b *CircuitBreaker) update(ctx context.Context, key string, fn func(resilience.BreakerRecord) resilience.BreakerRecord, outcome string) {
	rec, err := b.store.Update(context.WithoutCancel(ctx), key, fn)
	if err != nil {
		b.logger.Warn(ctx, "cache.breaker.save_failed", observe.F("key", key), observe.Err(err))
		return
	}
	if rec.State == resilience.StateOpen && outcome == "failure" {
		b.logger.Warn(ctx, "cache.breaker.open",
			observe.F("key", key), observe.F("failures", rec.FailureCount))
		return
	}
	b.logger.Debug(ctx, "cache.breaker.recorded",
		observe.F("key", key), observe.F("outcome", outcome), observe.F("state", rec.State.String()))
}
