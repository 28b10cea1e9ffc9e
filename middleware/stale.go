package middleware

import (
	"context"

	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
)

// StaleOnError serves the stored item when the rest of the chain fails.
// Serialization failures are never masked.
type StaleOnError struct {
	settings
}

// NewStaleOnError creates the stage.
func NewStaleOnError(opts ...Option) *StaleOnError {
	return &StaleOnError{settings: newSettings(opts)}
}

// Handle implements pipeline.Middleware.
func (s *StaleOnError) Handle(ctx context.Context, cc *pipeline.Context, next pipeline.Handler) *future.Future {
	return future.Try(func() *future.Future { return next(ctx, cc) }).Catch(func(err error) (any, error) {
		stale := cc.StaleItem
		if stale == nil || pipeline.KindOf(err) == pipeline.KindSerialization {
			return nil, err
		}
		s.logger.Warn(ctx, "cache.stale_on_error.served",
			observe.F("key", cc.Key),
			observe.F("kind", pipeline.KindOf(err).String()),
			observe.Err(err))
		s.emit(ctx, observe.EventStale, cc)
		return stale.Data, nil
	})
}
