package pipeline

import (
	"context"

	"github.com/jonwraymond/cachepipe/future"
)

// Source produces the value to cache for one resolution.
//
// Fetch is invoked at most once per pipeline pass (retries invoke it again).
// The adapters below cover synchronous functions, Future-returning
// functions, and channels.
type Source interface {
	Fetch(ctx context.Context) *future.Future
}

// SourceFunc adapts a blocking function. Fetch runs it in a new goroutine.
type SourceFunc func(ctx context.Context) (any, error)

// Fetch implements Source.
func (fn SourceFunc) Fetch(ctx context.Context) *future.Future {
	return future.Go(func() (any, error) { return fn(ctx) })
}

// FutureSourceFunc adapts a function that already returns a Future.
type FutureSourceFunc func(ctx context.Context) *future.Future

// Fetch implements Source.
func (fn FutureSourceFunc) Fetch(ctx context.Context) *future.Future {
	return future.Try(func() *future.Future { return fn(ctx) })
}

// ChanSourceFunc adapts a function that delivers its outcome on a channel.
type ChanSourceFunc func(ctx context.Context) <-chan future.Result

// Fetch implements Source.
func (fn ChanSourceFunc) Fetch(ctx context.Context) *future.Future {
	return future.FromChan(fn(ctx))
}

// Value returns a Source that always yields v.
func Value(v any) Source {
	return FutureSourceFunc(func(context.Context) *future.Future {
		return future.Resolved(v)
	})
}
