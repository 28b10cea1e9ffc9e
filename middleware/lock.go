package middleware

import (
	"context"
	"time"

	"github.com/jonwraymond/cachepipe/cache"
	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/lock"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
)

// LockKeyPrefix namespaces per-key fetch locks.
const LockKeyPrefix = "lock:"

// LockConfig configures the Lock stage.
type LockConfig struct {
	// TTL bounds how long one holder keeps the lock.
	// Default: 30s
	TTL time.Duration

	// WaitTimeout bounds how long a caller without a stale value waits.
	// Default: 10s
	WaitTimeout time.Duration

	// PollInterval is the delay between acquisition attempts while waiting.
	// Default: 50ms
	PollInterval time.Duration
}

func (c LockConfig) withDefaults() LockConfig {
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	return c
}

// Lock lets one caller per key run the rest of the chain.
//
// The holder runs next and releases the lock when it settles. A caller that
// finds the lock taken is served Context.StaleItem when there is one;
// otherwise it polls until it can acquire the lock or WaitTimeout passes.
// After acquiring on a wait, storage is checked again so a value written by
// the previous holder is served without fetching.
type Lock struct {
	settings
	provider lock.Provider
	storage  *cache.Storage
	cfg      LockConfig
}

// NewLock creates the stage. A nil provider disables it.
func NewLock(provider lock.Provider, storage *cache.Storage, cfg LockConfig, opts ...Option) *Lock {
	return &Lock{
		settings: newSettings(opts),
		provider: provider,
		storage:  storage,
		cfg:      cfg.withDefaults(),
	}
}

// LockKey returns the lock name guarding key.
func LockKey(key string) string {
	return LockKeyPrefix + key
}

// Handle implements pipeline.Middleware.
func (l *Lock) Handle(ctx context.Context, cc *pipeline.Context, next pipeline.Handler) *future.Future {
	if l.provider == nil {
		return next(ctx, cc)
	}

	token, acquired, err := l.provider.Acquire(ctx, LockKey(cc.Key), l.cfg.TTL, false)
	if err != nil {
		l.logger.Warn(ctx, "cache.lock.acquire_failed", observe.F("key", cc.Key), observe.Err(err))
		return next(ctx, cc)
	}
	if acquired {
		return l.runHeld(ctx, cc, next, token)
	}

	if cc.StaleItem != nil {
		l.logger.Debug(ctx, "cache.lock.served_stale", observe.F("key", cc.Key))
		l.emit(ctx, observe.EventStale, cc)
		return future.Resolved(cc.StaleItem.Data)
	}

	l.logger.Debug(ctx, "cache.lock.waiting", observe.F("key", cc.Key))
	return l.wait(ctx, cc, next, l.now().Add(l.cfg.WaitTimeout))
}

func (l *Lock) wait(ctx context.Context, cc *pipeline.Context, next pipeline.Handler, deadline time.Time) *future.Future {
	return future.Delay(l.cfg.PollInterval).Then(func(any) (any, error) {
		token, acquired, err := l.provider.Acquire(ctx, LockKey(cc.Key), l.cfg.TTL, false)
		if err != nil {
			return nil, pipeline.NewError(pipeline.KindLockTimeout, cc.Key, err)
		}
		if acquired {
			return l.afterWait(ctx, cc, next, token), nil
		}
		if !l.now().Before(deadline) {
			l.logger.Warn(ctx, "cache.lock.timeout",
				observe.F("key", cc.Key), observe.F("wait_timeout", l.cfg.WaitTimeout))
			return nil, pipeline.NewError(pipeline.KindLockTimeout, cc.Key, nil)
		}
		return l.wait(ctx, cc, next, deadline), nil
	}, nil)
}

// afterWait serves a value the previous holder wrote, or falls through to
// next while holding the lock.
func (l *Lock) afterWait(ctx context.Context, cc *pipeline.Context, next pipeline.Handler, token string) *future.Future {
	item, err := l.storage.Get(ctx, cc.Key, cc.Options)
	if err != nil {
		l.logger.Warn(ctx, "cache.lock.recheck_failed", observe.F("key", cc.Key), observe.Err(err))
	}
	if item != nil && item.IsFresh(l.now()) {
		if valid, terr := l.storage.TagsValid(ctx, item); terr == nil && valid {
			l.release(ctx, cc.Key, token)
			l.logger.Debug(ctx, "cache.lock.recheck_hit", observe.F("key", cc.Key))
			l.emit(ctx, observe.EventHit, cc)
			return future.Resolved(item.Data)
		}
	}
	return l.runHeld(ctx, cc, next, token)
}

func (l *Lock) runHeld(ctx context.Context, cc *pipeline.Context, next pipeline.Handler, token string) *future.Future {
	return future.Try(func() *future.Future { return next(ctx, cc) }).Finally(func() {
		l.release(ctx, cc.Key, token)
	})
}

func (l *Lock) release(ctx context.Context, key, token string) {
	if err := l.provider.Release(context.WithoutCancel(ctx), LockKey(key), token); err != nil {
		l.logger.Warn(ctx, "cache.lock.release_failed", observe.F("key", key), observe.Err(err))
	}
}
