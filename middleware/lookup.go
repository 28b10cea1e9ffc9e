package middleware

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/cachepipe/cache"
	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
)

// Lookup serves cached values and decides when the source must run.
//
// Behaviour per resolution:
//   - StrategyForceRefresh or disabled caching: emit Bypass, call next.
//   - No stored item, or an item whose tags were invalidated: emit Miss,
//     call next.
//   - Fresh item that survives early expiration: emit Hit, serve it.
//   - Otherwise, under StrategyBackground: serve the item and refresh it
//     asynchronously, one refresh per key at a time.
//   - Otherwise: call next with the item recorded as Context.StaleItem.
type Lookup struct {
	settings
	storage *cache.Storage

	refreshes singleflight.Group

	mu     sync.Mutex
	active int
	idle   chan struct{} // closed when active drops to zero
}

// NewLookup creates the stage.
func NewLookup(storage *cache.Storage, opts ...Option) *Lookup {
	return &Lookup{settings: newSettings(opts), storage: storage}
}

// Handle implements pipeline.Middleware.
func (l *Lookup) Handle(ctx context.Context, cc *pipeline.Context, next pipeline.Handler) *future.Future {
	opts := cc.Options
	if opts.Strategy == cache.StrategyForceRefresh || !opts.ShouldCache() {
		l.logger.Debug(ctx, "cache.lookup.bypass", observe.F("key", cc.Key))
		l.emit(ctx, observe.EventBypass, cc)
		return next(ctx, cc)
	}

	item, err := l.load(ctx, cc)
	if err != nil {
		return future.Rejected(pipeline.Classify(cc.Key, err, pipeline.KindStorage))
	}
	if item == nil {
		l.logger.Debug(ctx, "cache.lookup.miss", observe.F("key", cc.Key))
		l.emit(ctx, observe.EventMiss, cc)
		return next(ctx, cc)
	}
	cc.StaleItem = item

	now := l.now()
	if item.IsFresh(now) {
		if !l.expiresEarly(item, opts, now) {
			l.logger.Debug(ctx, "cache.lookup.hit", observe.F("key", cc.Key))
			l.emit(ctx, observe.EventHit, cc)
			return future.Resolved(item.Data)
		}
		l.logger.Debug(ctx, "cache.lookup.early_expiration",
			observe.F("key", cc.Key), observe.F("generation_time", item.GenerationTime))
		l.emit(ctx, observe.EventXFetch, cc)
	} else {
		l.logger.Debug(ctx, "cache.lookup.stale", observe.F("key", cc.Key))
	}

	if opts.Strategy == cache.StrategyBackground {
		l.emit(ctx, observe.EventStale, cc)
		l.refresh(ctx, cc, next)
		return future.Resolved(item.Data)
	}
	return next(ctx, cc)
}

// Wait blocks until no background refresh is running. Refreshes may keep
// starting while Wait blocks; it returns once the count reaches zero.
func (l *Lookup) Wait() {
	l.mu.Lock()
	if l.active == 0 {
		l.mu.Unlock()
		return
	}
	idle := l.idle
	l.mu.Unlock()
	<-idle
}

// Refreshing returns the number of background refreshes running.
func (l *Lookup) Refreshing() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *Lookup) refreshStarted() {
	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.mu.Unlock()
}

func (l *Lookup) refreshFinished() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()
}

// load reads the stored item and drops it if its tags were invalidated.
func (l *Lookup) load(ctx context.Context, cc *pipeline.Context) (*cache.CachedItem, error) {
	item, err := l.storage.Get(ctx, cc.Key, cc.Options)
	if err != nil || item == nil {
		return nil, err
	}

	valid, err := l.storage.TagsValid(ctx, item)
	if err != nil {
		if !cc.Options.FailSafe {
			return nil, err
		}
		l.logger.Warn(ctx, "cache.lookup.tags_check_failed", observe.F("key", cc.Key), observe.Err(err))
		return nil, nil
	}
	if !valid {
		l.logger.Debug(ctx, "cache.lookup.tags_invalidated", observe.F("key", cc.Key))
		return nil, nil
	}
	return item, nil
}

// expiresEarly applies probabilistic early expiration: with
// r uniform in (0,1], the item is treated as expired when
// now - generationTime*beta*ln(r) is past its logical expiry.
func (l *Lookup) expiresEarly(item *cache.CachedItem, opts cache.Options, now time.Time) bool {
	if opts.XFetchBeta <= 0 || item.GenerationTime <= 0 {
		return false
	}
	r := 1 - l.rand()
	if r <= 0 || r > 1 {
		r = 1
	}
	gap := -item.GenerationTime.Seconds() * opts.XFetchBeta * math.Log(r)
	return gap > item.LogicalExpireTime.Sub(now).Seconds()
}

// refresh runs next asynchronously, at most once per key concurrently.
// Failures are logged; the caller has already been served.
func (l *Lookup) refresh(ctx context.Context, cc *pipeline.Context, next pipeline.Handler) {
	bctx := context.WithoutCancel(ctx)
	bcc := cc.Clone()

	l.refreshStarted()
	go func() {
		defer l.refreshFinished()
		_, _, _ = l.refreshes.Do(bcc.Key, func() (any, error) {
			l.logger.Debug(bctx, "cache.refresh.started", observe.F("key", bcc.Key))
			v, err := future.Try(func() *future.Future { return next(bctx, bcc) }).Wait(bctx)
			if err != nil {
				l.logger.Error(bctx, "cache.refresh.failed",
					observe.F("key", bcc.Key),
					observe.F("kind", pipeline.KindOf(err).String()),
					observe.Err(err))
				return nil, err
			}
			l.logger.Debug(bctx, "cache.refresh.completed", observe.F("key", bcc.Key))
			return v, nil
		})
	}()
}
