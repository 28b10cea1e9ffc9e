package middleware

import (
	"context"
	"sync"

	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/pipeline"
)

// Coalesce shares one in-flight resolution per key.
//
// Concurrent callers for a key receive the same Future and the rest of the
// chain runs once. The shared work runs with a context detached from the
// first caller's cancellation, since other callers depend on it.
type Coalesce struct {
	mu       sync.Mutex
	inflight map[string]*future.Future
}

// NewCoalesce creates an empty Coalesce.
func NewCoalesce() *Coalesce {
	return &Coalesce{inflight: make(map[string]*future.Future)}
}

// Handle implements pipeline.Middleware.
func (c *Coalesce) Handle(ctx context.Context, cc *pipeline.Context, next pipeline.Handler) *future.Future {
	c.mu.Lock()
	if f, ok := c.inflight[cc.Key]; ok {
		c.mu.Unlock()
		return f
	}
	shared := future.New()
	c.inflight[cc.Key] = shared
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	inner := future.Try(func() *future.Future { return next(detached, cc) })
	inner.Then(
		func(value any) (any, error) {
			c.forget(cc.Key, shared)
			shared.Resolve(value)
			return value, nil
		},
		func(err error) (any, error) {
			c.forget(cc.Key, shared)
			shared.Reject(err)
			return nil, err
		},
	)
	return shared
}

// InFlight returns the number of keys with a pending resolution.
func (c *Coalesce) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// forget removes key before its Future settles so handlers that resolve the
// same key again start a new flight.
func (c *Coalesce) forget(key string, f *future.Future) {
	c.mu.Lock()
	if c.inflight[key] == f {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
}
