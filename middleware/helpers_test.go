package middleware

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/cachepipe/cache"
	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
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

func newTestStorage(t *testing.T, now func() time.Time) *cache.Storage {
	t.Helper()
	backend := cache.NewMemoryBackend(cache.WithMemoryClock(now))
	st, err := cache.NewStorage(backend, cache.WithClock(now))
	require.NoError(t, err)
	return st
}

func newContext(key string, opts cache.Options, now time.Time) *pipeline.Context {
	return &pipeline.Context{Key: key, Options: opts, StartTime: now}
}

// countingHandler is a terminal handler that records calls.
type countingHandler struct {
	calls  atomic.Int32
	result func(n int32) *future.Future
}

func (h *countingHandler) Handle(_ context.Context, _ *pipeline.Context) *future.Future {
	n := h.calls.Add(1)
	return h.result(n)
}

func resolvesWith(v any) *countingHandler {
	return &countingHandler{result: func(int32) *future.Future { return future.Resolved(v) }}
}

func rejectsWith(err error) *countingHandler {
	return &countingHandler{result: func(int32) *future.Future { return future.Rejected(err) }}
}

// gatedHandler settles every call when its gate closes.
type gatedHandler struct {
	calls atomic.Int32
	gate  chan struct{}
	value any
	err   error
}

func newGatedHandler(value any, err error) *gatedHandler {
	return &gatedHandler{gate: make(chan struct{}), value: value, err: err}
}

func (h *gatedHandler) Handle(_ context.Context, _ *pipeline.Context) *future.Future {
	h.calls.Add(1)
	return future.Go(func() (any, error) {
		<-h.gate
		return h.value, h.err
	})
}

func (h *gatedHandler) open() { close(h.gate) }

func await(t *testing.T, f *future.Future) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func fixedRand(v float64) func() float64 {
	return func() float64 { return v }
}

// recordingLogger keeps message names at every level.
type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs...)
}

func (l *recordingLogger) Debug(_ context.Context, msg string, _ ...observe.Field) { l.record(msg) }
func (l *recordingLogger) Info(_ context.Context, msg string, _ ...observe.Field)  { l.record(msg) }
func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...observe.Field)  { l.record(msg) }
func (l *recordingLogger) Error(_ context.Context, msg string, _ ...observe.Field) { l.record(msg) }
func (l *recordingLogger) Critical(_ context.Context, msg string, _ ...observe.Field) {
	l.record(msg)
}
func (l *recordingLogger) With(...observe.Field) observe.Logger { return l }
