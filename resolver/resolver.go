package resolver

import (
	"context"
	"slices"
	"time"

	"github.com/jonwraymond/cachepipe/cache"
	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/lock"
	"github.com/jonwraymond/cachepipe/middleware"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
	"github.com/jonwraymond/cachepipe/resilience"
)

// Resolver resolves keys through a cache pipeline.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Resolve never panics and never blocks; failures are rejected Futures.
type Resolver struct {
	storage  *cache.Storage
	pipeline *pipeline.Pipeline
	breakers *resilience.BreakerStore
	coalesce *middleware.Coalesce
	lookups  []*middleware.Lookup

	logger   observe.Logger
	tracer   observe.Tracer
	keyer    cache.Keyer
	now      func() time.Time
	defaults cache.Options
}

// New builds a Resolver over storage.
func New(storage *cache.Storage, opts ...Option) (*Resolver, error) {
	if storage == nil {
		return nil, ErrNilStorage
	}

	cfg := config{
		logger:   observe.NopLogger(),
		sink:     observe.NopSink(),
		tracer:   observe.NopTracer(),
		now:      time.Now,
		keyer:    cache.NewDefaultKeyer(),
		defaults: cache.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.defaults.Validate(); err != nil {
		return nil, err
	}
	if cfg.locks == nil {
		cfg.locks = lock.NewMemory(lock.WithClock(cfg.now))
	}
	if cfg.breakers == nil && !cfg.noBreaker {
		store, err := resilience.NewBreakerStore(storage.Backend(), cfg.breakerCfg)
		if err != nil {
			return nil, err
		}
		cfg.breakers = store
	}

	shared := []middleware.Option{
		middleware.WithLogger(cfg.logger),
		middleware.WithEventSink(cfg.sink),
		middleware.WithClock(cfg.now),
	}
	if cfg.rand != nil {
		shared = append(shared, middleware.WithRand(cfg.rand))
	}

	r := &Resolver{
		storage:  storage,
		breakers: cfg.breakers,
		logger:   cfg.logger,
		tracer:   cfg.tracer,
		keyer:    cfg.keyer,
		now:      cfg.now,
		defaults: cfg.defaults,
	}

	chain := cfg.middlewares
	if !cfg.customChain {
		chain = r.defaultChain(cfg, shared)
	}
	for _, mw := range chain {
		switch m := mw.(type) {
		case *middleware.Coalesce:
			r.coalesce = m
		case *middleware.Lookup:
			r.lookups = append(r.lookups, m)
		}
	}

	fetch := middleware.NewFetch(storage, cfg.fetchCfg, shared...)
	r.pipeline = pipeline.New(fetch.Handle, chain...)
	return r, nil
}

func (r *Resolver) defaultChain(cfg config, shared []middleware.Option) []pipeline.Middleware {
	chain := []pipeline.Middleware{
		middleware.NewCoalesce(),
		middleware.NewLookup(r.storage, shared...),
		middleware.NewRateLimit(cfg.limiter, shared...),
		middleware.NewStaleOnError(shared...),
		middleware.NewLock(cfg.locks, r.storage, cfg.lockCfg, shared...),
	}
	if !cfg.noBreaker {
		chain = append(chain, middleware.NewCircuitBreaker(cfg.breakers, cfg.locks, shared...))
	}
	return append(chain, middleware.NewRetry(cfg.retry, shared...))
}

// Resolve returns a Future for key's value, fetching it from source when no
// usable cached value exists. opts are applied over the resolver's default
// options.
func (r *Resolver) Resolve(ctx context.Context, key string, source pipeline.Source, opts ...cache.Option) *future.Future {
	return r.ResolveWith(ctx, key, source, r.Options(opts...))
}

// ResolveFunc is Resolve with a blocking source function.
func (r *Resolver) ResolveFunc(ctx context.Context, key string, fn func(context.Context) (any, error), opts ...cache.Option) *future.Future {
	if fn == nil {
		return r.Resolve(ctx, key, nil, opts...)
	}
	return r.Resolve(ctx, key, pipeline.SourceFunc(fn), opts...)
}

// ResolveWith is Resolve with fully specified options.
func (r *Resolver) ResolveWith(ctx context.Context, key string, source pipeline.Source, opts cache.Options) *future.Future {
	if err := cache.ValidateKey(key); err != nil {
		return future.Rejected(err)
	}
	if err := opts.Validate(); err != nil {
		return future.Rejected(err)
	}
	if source == nil {
		return future.Rejected(pipeline.ErrNilSource)
	}

	ctx, span := r.tracer.StartSpan(ctx, key, opts.Tags)
	cc := &pipeline.Context{
		Key:       key,
		Source:    source,
		Options:   opts,
		StartTime: r.now(),
	}

	return r.pipeline.Handle(ctx, cc).Then(
		func(value any) (any, error) {
			r.tracer.EndSpan(span, nil)
			return value, nil
		},
		func(err error) (any, error) {
			r.tracer.EndSpan(span, err)
			r.logger.Debug(ctx, "cache.resolve.failed",
				observe.F("key", key),
				observe.F("kind", pipeline.KindOf(err).String()),
				observe.Err(err))
			return nil, err
		},
	)
}

// Options returns the resolver's default options with opts applied.
func (r *Resolver) Options(opts ...cache.Option) cache.Options {
	o := r.defaults
	o.Tags = slices.Clone(o.Tags)
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Invalidate removes key's cached value.
func (r *Resolver) Invalidate(ctx context.Context, key string) error {
	return r.storage.Delete(ctx, key)
}

// InvalidateTags invalidates every value cached under any of tags.
func (r *Resolver) InvalidateTags(ctx context.Context, tags ...string) error {
	return r.storage.InvalidateTags(ctx, tags...)
}

// KeyFor derives a cache key for input within namespace.
func (r *Resolver) KeyFor(namespace string, input any) (string, error) {
	return r.keyer.Key(namespace, input)
}

// Storage returns the underlying storage.
func (r *Resolver) Storage() *cache.Storage {
	return r.storage
}

// Breakers returns the breaker store, or nil when the breaker is disabled.
func (r *Resolver) Breakers() *resilience.BreakerStore {
	return r.breakers
}

// InFlight returns the number of keys currently being resolved, or 0 when
// the chain has no Coalesce stage.
func (r *Resolver) InFlight() int {
	if r.coalesce == nil {
		return 0
	}
	return r.coalesce.InFlight()
}

// Drain blocks until no background refresh is running. It may be called
// while traffic continues.
func (r *Resolver) Drain() {
	for _, l := range r.lookups {
		l.Wait()
	}
}

// Get resolves key and converts the value to T. It blocks until the
// resolution settles or ctx is done.
func Get[T any](ctx context.Context, r *Resolver, key string, fn func(context.Context) (T, error), opts ...cache.Option) (T, error) {
	var zero T
	if fn == nil {
		_, err := r.Resolve(ctx, key, nil, opts...).Wait(ctx)
		return zero, err
	}
	src := pipeline.SourceFunc(func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	v, err := r.Resolve(ctx, key, src, opts...).Wait(ctx)
	if err != nil {
		return zero, err
	}
	return cache.Decode[T](v)
}
