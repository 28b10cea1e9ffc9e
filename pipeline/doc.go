// Package pipeline composes cache middlewares around a terminal handler.
//
// A resolution carries one Context through an ordered list of Middleware.
// Each middleware receives a next Handler and returns a *future.Future; the
// list is folded right-to-left once, at construction, so the order is fixed
// by configuration:
//
//	p := pipeline.New(fetch, coalesce, lookup, retry)
//	f := p.Handle(ctx, &pipeline.Context{Key: "user:42", Source: src})
//
// A panic or a nil Future from any stage becomes a rejected Future, so
// Handle never panics.
//
// # Errors
//
// Failures that middlewares reason about carry a Kind (see Error). Use
// KindOf to classify any error, and errors.Is with the Err* sentinels to
// match a kind.
package pipeline
