package middleware

import (
	"context"
	"time"

	"github.com/jonwraymond/cachepipe/cache"
	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
	"github.com/jonwraymond/cachepipe/resilience"
)

// FetchConfig configures the terminal fetch.
type FetchConfig struct {
	// Timeout rejects a fetch that has not settled in time. Zero disables it.
	Timeout time.Duration

	// Bulkhead caps concurrent source fetches. Nil disables it.
	Bulkhead *resilience.Bulkhead
}

// Fetch invokes the source and persists its value.
//
// Generation time is measured from invocation to settlement and stored with
// the value for early expiration. Source failures are logged and rejected
// as pipeline.KindSourceFetch without touching storage.
type Fetch struct {
	settings
	storage *cache.Storage
	cfg     FetchConfig
}

// NewFetch creates the terminal stage.
func NewFetch(storage *cache.Storage, cfg FetchConfig, opts ...Option) *Fetch {
	return &Fetch{settings: newSettings(opts), storage: storage, cfg: cfg}
}

// Handle implements pipeline.Handler.
func (f *Fetch) Handle(ctx context.Context, cc *pipeline.Context) *future.Future {
	if cc.Source == nil {
		return future.Rejected(pipeline.NewError(pipeline.KindSourceFetch, cc.Key, pipeline.ErrNilSource))
	}

	release := func() {}
	if f.cfg.Bulkhead != nil {
		if err := f.cfg.Bulkhead.Acquire(ctx); err != nil {
			f.logger.Warn(ctx, "cache.fetch.bulkhead_full", observe.F("key", cc.Key), observe.Err(err))
			return future.Rejected(pipeline.NewError(pipeline.KindSourceFetch, cc.Key, err))
		}
		release = f.cfg.Bulkhead.Release
	}

	start := f.now()
	raw := future.Try(func() *future.Future { return cc.Source.Fetch(ctx) })
	raw.Finally(release)

	return future.Timeout(raw, f.cfg.Timeout, pipeline.ErrFetchTimeout).Then(
		func(value any) (any, error) {
			generation := f.now().Sub(start)
			if _, err := f.storage.Set(ctx, cc.Key, value, cc.Options, generation); err != nil {
				f.logger.Error(ctx, "cache.fetch.store_failed", observe.F("key", cc.Key), observe.Err(err))
				return nil, pipeline.Classify(cc.Key, err, pipeline.KindStorage)
			}
			f.logger.Debug(ctx, "cache.fetch.completed",
				observe.F("key", cc.Key), observe.F("generation_time", generation))
			return value, nil
		},
		func(err error) (any, error) {
			f.logger.Warn(ctx, "cache.fetch.failed", observe.F("key", cc.Key), observe.Err(err))
			return nil, pipeline.NewError(pipeline.KindSourceFetch, cc.Key, err)
		},
	)
}
