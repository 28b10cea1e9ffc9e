package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/cachepipe/cache"
	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/middleware"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
	"github.com/jonwraymond/cachepipe/resilience"
)

var errSourceDown = errors.New("source down")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// source counts invocations and returns value or err.
type source struct {
	calls atomic.Int32
	mu    sync.Mutex
	value any
	err   error
}

func (s *source) set(value any, err error) {
	s.mu.Lock()
	s.value, s.err = value, err
	s.mu.Unlock()
}

func (s *source) Fetch(context.Context) *future.Future {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return future.Rejected(s.err)
	}
	return future.Resolved(s.value)
}

type fixture struct {
	clock   *testClock
	storage *cache.Storage
	sink    *observe.RecordingSink
	r       *Resolver
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := newTestClock()
	st, err := cache.NewStorage(
		cache.NewMemoryBackend(cache.WithMemoryClock(clock.Now)),
		cache.WithClock(clock.Now),
	)
	require.NoError(t, err)
	sink := &observe.RecordingSink{}

	base := []Option{
		WithClock(clock.Now),
		WithEventSink(sink),
		WithRand(func() float64 { return 0.5 }),
		WithRetryConfig(resilience.RetryConfig{MaxRetries: -1}),
	}
	r, err := New(st, append(base, opts...)...)
	require.NoError(t, err)
	return &fixture{clock: clock, storage: st, sink: sink, r: r}
}

func await(t *testing.T, f *future.Future) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestNew_NilStorage(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilStorage)
}

func TestNew_InvalidDefaults(t *testing.T) {
	st, err := cache.NewStorage(cache.NewMemoryBackend())
	require.NoError(t, err)
	_, err = New(st, WithDefaultOptions(cache.Options{TTL: -1}))
	assert.ErrorIs(t, err, cache.ErrInvalidOptions)
}

func TestResolve_MissThenHit(t *testing.T) {
	f := newFixture(t)
	src := &source{value: "v1"}
	ctx := context.Background()

	for range 3 {
		v, err := await(t, f.r.Resolve(ctx, "k", src, cache.WithTTL(time.Minute)))
		require.NoError(t, err)
		assert.Equal(t, "v1", v)
	}
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, []observe.EventKind{observe.EventMiss, observe.EventHit, observe.EventHit}, f.sink.Kinds())
}

func TestResolve_CoalescesConcurrentCallers(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	var calls atomic.Int32
	src := pipeline.SourceFunc(func(context.Context) (any, error) {
		calls.Add(1)
		<-gate
		return "shared", nil
	})

	const callers = 50
	futures := make([]*future.Future, callers)
	for i := range callers {
		futures[i] = f.r.Resolve(context.Background(), "k", src)
	}
	assert.Equal(t, 1, f.r.InFlight())

	close(gate)
	for _, fut := range futures {
		v, err := await(t, fut)
		require.NoError(t, err)
		assert.Equal(t, "shared", v)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, f.r.InFlight())
}

func TestResolve_ServesStaleWhenSourceFails(t *testing.T) {
	f := newFixture(t)
	src := &source{value: "v1"}
	ctx := context.Background()
	opts := []cache.Option{cache.WithTTL(60 * time.Second), cache.WithStaleGracePeriod(time.Hour)}

	_, err := await(t, f.r.Resolve(ctx, "k", src, opts...))
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	src.set(nil, errSourceDown)

	v, err := await(t, f.r.Resolve(ctx, "k", src, opts...))
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestResolve_FailsWithoutStale(t *testing.T) {
	f := newFixture(t)
	src := &source{err: errSourceDown}

	_, err := await(t, f.r.Resolve(context.Background(), "k", src))
	assert.ErrorIs(t, err, errSourceDown)
	assert.ErrorIs(t, err, pipeline.ErrSourceFetch)
}

func TestResolve_CircuitBreaker(t *testing.T) {
	f := newFixture(t, WithBreakerConfig(resilience.BreakerConfig{FailureThreshold: 2, RetryTimeout: 30 * time.Second}))
	src := &source{err: errSourceDown}
	ctx := context.Background()

	for range 2 {
		_, err := await(t, f.r.Resolve(ctx, "k", src))
		assert.ErrorIs(t, err, pipeline.ErrSourceFetch)
	}

	_, err := await(t, f.r.Resolve(ctx, "k", src))
	assert.ErrorIs(t, err, pipeline.ErrCircuitOpen)
	assert.Equal(t, int32(2), src.calls.Load())

	f.clock.Advance(31 * time.Second)
	src.set("recovered", nil)
	v, err := await(t, f.r.Resolve(ctx, "k", src))
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(3), src.calls.Load())

	rec, err := f.r.Breakers().Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, resilience.StateClosed, rec.State)
}

type alwaysLimited struct{}

func (alwaysLimited) IsLimited(context.Context, string) (bool, error) { return true, nil }
func (alwaysLimited) RecordExecution(context.Context, string) error   { return nil }
func (alwaysLimited) Clear(context.Context, string) error             { return nil }

func TestResolve_RateLimited(t *testing.T) {
	f := newFixture(t, WithRateLimiter(alwaysLimited{}))
	ctx := context.Background()
	opts := []cache.Option{
		cache.WithTTL(60 * time.Second),
		cache.WithStaleGracePeriod(time.Hour),
		cache.WithRateLimitKey("upstream"),
		cache.WithServeStaleIfLimited(true),
	}

	_, err := f.storage.Set(ctx, "k", "stale", f.r.Options(opts...), 0)
	require.NoError(t, err)
	f.clock.Advance(61 * time.Second)

	src := &source{value: "fresh"}
	v, err := await(t, f.r.Resolve(ctx, "k", src, opts...))
	require.NoError(t, err)
	assert.Equal(t, "stale", v)
	assert.Zero(t, src.calls.Load())

	_, err = await(t, f.r.Resolve(ctx, "other", src, opts...))
	assert.ErrorIs(t, err, pipeline.ErrRateLimitExceeded)
	assert.Zero(t, src.calls.Load())
}

func TestResolve_EarlyExpiration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := []cache.Option{cache.WithTTL(time.Hour), cache.WithXFetchBeta(1e9)}

	_, err := f.storage.Set(ctx, "k", "old", f.r.Options(opts...), time.Second)
	require.NoError(t, err)

	src := &source{value: "new"}
	v, err := await(t, f.r.Resolve(ctx, "k", src, opts...))
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.Equal(t, []observe.EventKind{observe.EventXFetch}, f.sink.Kinds())
}

func TestResolve_BackgroundRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := []cache.Option{
		cache.WithTTL(60 * time.Second),
		cache.WithStaleGracePeriod(time.Hour),
		cache.WithStrategy(cache.StrategyBackground),
	}

	_, err := f.storage.Set(ctx, "k", "old", f.r.Options(opts...), 0)
	require.NoError(t, err)
	f.clock.Advance(61 * time.Second)

	src := &source{value: "new"}
	v, err := await(t, f.r.Resolve(ctx, "k", src, opts...))
	require.NoError(t, err)
	assert.Equal(t, "old", v)

	f.r.Drain()
	assert.Equal(t, int32(1), src.calls.Load())

	v, err = await(t, f.r.Resolve(ctx, "k", src, opts...))
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestResolve_ForceRefresh(t *testing.T) {
	f := newFixture(t)
	src := &source{value: "v"}
	ctx := context.Background()

	_, err := await(t, f.r.Resolve(ctx, "k", src))
	require.NoError(t, err)
	_, err = await(t, f.r.Resolve(ctx, "k", src, cache.WithStrategy(cache.StrategyForceRefresh)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	src := &source{value: "v"}
	ctx := context.Background()

	_, err := await(t, f.r.Resolve(ctx, "k", src))
	require.NoError(t, err)
	require.NoError(t, f.r.Invalidate(ctx, "k"))
	_, err = await(t, f.r.Resolve(ctx, "k", src))
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestInvalidateTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := &source{value: "u"}
	orders := &source{value: "o"}

	_, err := await(t, f.r.Resolve(ctx, "user:1", users, cache.WithTags("users")))
	require.NoError(t, err)
	_, err = await(t, f.r.Resolve(ctx, "order:1", orders, cache.WithTags("orders")))
	require.NoError(t, err)

	require.NoError(t, f.r.InvalidateTags(ctx, "users"))

	_, err = await(t, f.r.Resolve(ctx, "user:1", users, cache.WithTags("users")))
	require.NoError(t, err)
	_, err = await(t, f.r.Resolve(ctx, "order:1", orders, cache.WithTags("orders")))
	require.NoError(t, err)

	assert.Equal(t, int32(2), users.calls.Load())
	assert.Equal(t, int32(1), orders.calls.Load())
}

func TestResolve_KeysShadowingTagTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := &source{value: "v"}
	opts := []cache.Option{cache.WithTTL(time.Minute), cache.WithTags("users")}

	_, err := await(t, f.r.Resolve(ctx, "tag:users", src, opts...))
	require.NoError(t, err)
	require.NoError(t, f.r.InvalidateTags(ctx, "users"))

	v, err := await(t, f.r.Resolve(ctx, "tag:users", src, opts...))
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, int32(2), src.calls.Load(), "tag invalidation refetches instead of corrupting the entry")

	v, err = await(t, f.r.Resolve(ctx, "tag:users", src, opts...))
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestResolve_KeysShadowingBreakerRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cached := &source{value: "v"}

	_, err := await(t, f.r.Resolve(ctx, "cb:orders", cached, cache.WithTTL(time.Minute)))
	require.NoError(t, err)

	_, err = await(t, f.r.Resolve(ctx, "orders", &source{err: errSourceDown}))
	require.ErrorIs(t, err, pipeline.ErrSourceFetch)

	v, err := await(t, f.r.Resolve(ctx, "cb:orders", cached, cache.WithTTL(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, int32(1), cached.calls.Load())

	rec, err := f.r.Breakers().Load(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.FailureCount)
}

func TestResolve_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := await(t, f.r.Resolve(ctx, "", &source{}))
	assert.ErrorIs(t, err, cache.ErrInvalidKey)

	_, err = await(t, f.r.Resolve(ctx, "k", nil))
	assert.ErrorIs(t, err, pipeline.ErrNilSource)

	_, err = await(t, f.r.ResolveFunc(ctx, "k", nil))
	assert.ErrorIs(t, err, pipeline.ErrNilSource)

	_, err = await(t, f.r.Resolve(ctx, "k", &source{}, cache.WithXFetchBeta(-1)))
	assert.ErrorIs(t, err, cache.ErrInvalidOptions)
}

type profile struct {
	Name  string
	Roles []string
}

func TestGet_Typed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var calls int
	load := func(context.Context) (profile, error) {
		calls++
		return profile{Name: "ada", Roles: []string{"admin"}}, nil
	}

	for range 2 {
		p, err := Get(ctx, f.r, "profile:1", load)
		require.NoError(t, err)
		assert.Equal(t, profile{Name: "ada", Roles: []string{"admin"}}, p)
	}
	assert.Equal(t, 1, calls)
}

func TestGet_Error(t *testing.T) {
	f := newFixture(t)
	_, err := Get(context.Background(), f.r, "k", func(context.Context) (int, error) {
		return 0, errSourceDown
	})
	assert.ErrorIs(t, err, errSourceDown)
}

func TestResolve_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	f := newFixture(t, WithTracer(observe.NewTracer(tp.Tracer("test"))))

	_, err := await(t, f.r.Resolve(context.Background(), "k", &source{value: 1}))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, observe.SpanResolve, spans[0].Name())
}

func TestWithMiddlewares_CustomChain(t *testing.T) {
	clock := newTestClock()
	st, err := cache.NewStorage(cache.NewMemoryBackend(cache.WithMemoryClock(clock.Now)), cache.WithClock(clock.Now))
	require.NoError(t, err)

	var order []string
	trace := pipeline.MiddlewareFunc(func(ctx context.Context, cc *pipeline.Context, next pipeline.Handler) *future.Future {
		order = append(order, cc.Key)
		return next(ctx, cc)
	})
	r, err := New(st, WithClock(clock.Now), WithMiddlewares(trace, middleware.NewLookup(st, middleware.WithClock(clock.Now))))
	require.NoError(t, err)

	src := &source{value: "v"}
	for range 2 {
		_, err := await(t, r.Resolve(context.Background(), "k", src))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"k", "k"}, order)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Zero(t, r.InFlight())
}

func TestKeyFor(t *testing.T) {
	f := newFixture(t)
	a, err := f.r.KeyFor("users", map[string]any{"id": 1, "fields": []string{"name"}})
	require.NoError(t, err)
	b, err := f.r.KeyFor("users", map[string]any{"fields": []string{"name"}, "id": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "users:")
}
