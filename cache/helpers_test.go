package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

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

var errBackendDown = errors.New("backend down")

// failingBackend fails every operation.
type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errBackendDown
}

func (failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errBackendDown
}

func (failingBackend) Delete(context.Context, string) error { return errBackendDown }

func (failingBackend) Clear(context.Context) error { return errBackendDown }

// ttlRecorder captures the TTL passed to Set.
type ttlRecorder struct {
	*MemoryBackend
	mu   sync.Mutex
	ttls map[string]time.Duration
}

func newTTLRecorder(clock func() time.Time) *ttlRecorder {
	return &ttlRecorder{MemoryBackend: NewMemoryBackend(WithMemoryClock(clock)), ttls: map[string]time.Duration{}}
}

func (r *ttlRecorder) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.mu.Lock()
	r.ttls[key] = ttl
	r.mu.Unlock()
	return r.MemoryBackend.Set(ctx, key, value, ttl)
}

func (r *ttlRecorder) TTL(key string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttls[key]
}
