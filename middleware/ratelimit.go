package middleware

import (
	"context"

	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
	"github.com/jonwraymond/cachepipe/ratelimit"
)

// RateLimit gates source fetches for resolutions that set
// Options.RateLimitKey.
//
// A limited resolution is served the stored item when
// Options.ServeStaleIfLimited is set and one exists; otherwise it is
// rejected with pipeline.KindRateLimitExceeded. Limiter errors are logged
// and treated as not limited.
type RateLimit struct {
	settings
	limiter ratelimit.Limiter
}

// NewRateLimit creates the stage. A nil limiter disables it.
func NewRateLimit(limiter ratelimit.Limiter, opts ...Option) *RateLimit {
	return &RateLimit{settings: newSettings(opts), limiter: limiter}
}

// Handle implements pipeline.Middleware.
func (r *RateLimit) Handle(ctx context.Context, cc *pipeline.Context, next pipeline.Handler) *future.Future {
	rlKey := cc.Options.RateLimitKey
	if r.limiter == nil || rlKey == "" {
		return next(ctx, cc)
	}

	limited, err := r.limiter.IsLimited(ctx, rlKey)
	if err != nil {
		r.logger.Warn(ctx, "cache.ratelimit.check_failed",
			observe.F("key", cc.Key), observe.F("rate_limit_key", rlKey), observe.Err(err))
		limited = false
	}

	if limited {
		if cc.Options.ServeStaleIfLimited && cc.StaleItem != nil {
			r.logger.Info(ctx, "cache.ratelimit.served_stale",
				observe.F("key", cc.Key), observe.F("rate_limit_key", rlKey))
			r.emit(ctx, observe.EventStale, cc)
			return future.Resolved(cc.StaleItem.Data)
		}
		r.logger.Warn(ctx, "cache.ratelimit.exceeded",
			observe.F("key", cc.Key), observe.F("rate_limit_key", rlKey))
		return future.Rejected(pipeline.NewError(pipeline.KindRateLimitExceeded, cc.Key, nil))
	}

	if err := r.limiter.RecordExecution(ctx, rlKey); err != nil {
		r.logger.Warn(ctx, "cache.ratelimit.record_failed",
			observe.F("key", cc.Key), observe.F("rate_limit_key", rlKey), observe.Err(err))
	}
	return next(ctx, cc)
}
