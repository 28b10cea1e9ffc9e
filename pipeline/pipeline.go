package pipeline

import (
	"context"

	"github.com/jonwraymond/cachepipe/future"
)

// Handler processes one resolution.
type Handler func(ctx context.Context, cc *Context) *future.Future

// Middleware wraps the rest of the chain.
//
// Contract:
// - Handle must return a Future; it may call next zero or more times.
// - Handle must not block on next's Future.
type Middleware interface {
	Handle(ctx context.Context, cc *Context, next Handler) *future.Future
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, cc *Context, next Handler) *future.Future

// Handle calls f.
func (f MiddlewareFunc) Handle(ctx context.Context, cc *Context, next Handler) *future.Future {
	return f(ctx, cc, next)
}

// Pipeline is an immutable composition of middlewares around a terminal
// handler.
type Pipeline struct {
	handler Handler
	size    int
}

// New composes mws around terminal. The first middleware is outermost.
// Nil middlewares are skipped.
func New(terminal Handler, mws ...Middleware) *Pipeline {
	h := guard(terminal)
	size := 0
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		if mw == nil {
			continue
		}
		next := h
		h = guard(func(ctx context.Context, cc *Context) *future.Future {
			return mw.Handle(ctx, cc, next)
		})
		size++
	}
	return &Pipeline{handler: h, size: size}
}

// Handle runs the composed chain for cc.
func (p *Pipeline) Handle(ctx context.Context, cc *Context) *future.Future {
	return p.handler(ctx, cc)
}

// Len returns the number of composed middlewares, excluding the terminal.
func (p *Pipeline) Len() int {
	return p.size
}

func guard(h Handler) Handler {
	return func(ctx context.Context, cc *Context) *future.Future {
		return future.Try(func() *future.Future {
			if h == nil {
				return future.Rejected(ErrNilHandler)
			}
			return h(ctx, cc)
		})
	}
}
