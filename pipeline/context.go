package pipeline

import (
	"time"

	"github.com/jonwraymond/cachepipe/cache"
)

// Context is the per-resolution state shared by every middleware.
//
// A Context belongs to one resolution. Middlewares may set StaleItem; other
// fields are read-only once the pipeline starts.
type Context struct {
	Key       string
	Source    Source
	Options   cache.Options
	StartTime time.Time

	// StaleItem is the stored item found by lookup, fresh or not.
	// Downstream stages use it as a fallback.
	StaleItem *cache.CachedItem
}

// Clone returns a shallow copy of c.
func (c *Context) Clone() *Context {
	cp := *c
	return &cp
}

// Elapsed returns the time since StartTime according to now.
func (c *Context) Elapsed(now time.Time) time.Duration {
	if c.StartTime.IsZero() {
		return 0
	}
	return now.Sub(c.StartTime)
}
