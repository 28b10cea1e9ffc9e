package middleware

import (
	"context"

	"github.com/jonwraymond/cachepipe/future"
	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
	"github.com/jonwraymond/cachepipe/resilience"
)

// Retry re-runs next with exponential backoff.
// Unless cfg.RetryIf is set, only pipeline.IsRetryable failures are retried.
type Retry struct {
	settings
	cfg resilience.RetryConfig
}

// NewRetry creates the stage. Zero config fields take defaults.
func NewRetry(cfg resilience.RetryConfig, opts ...Option) *Retry {
	if cfg.RetryIf == nil {
		cfg.RetryIf = pipeline.IsRetryable
	}
	return &Retry{settings: newSettings(opts), cfg: cfg.WithDefaults()}
}

// Handle implements pipeline.Middleware.
func (r *Retry) Handle(ctx context.Context, cc *pipeline.Context, next pipeline.Handler) *future.Future {
	return r.attempt(ctx, cc, next, 0)
}

func (r *Retry) attempt(ctx context.Context, cc *pipeline.Context, next pipeline.Handler, n int) *future.Future {
	return future.Try(func() *future.Future { return next(ctx, cc) }).Catch(func(err error) (any, error) {
		if !r.cfg.ShouldRetry(n, err) {
			if n > 0 {
				r.logger.Warn(ctx, "cache.retry.exhausted",
					observe.F("key", cc.Key), observe.F("attempts", n+1), observe.Err(err))
			}
			return nil, err
		}
		delay := r.cfg.Delay(n)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(n+1, err, delay)
		}
		r.logger.Info(ctx, "cache.retry.scheduled",
			observe.F("key", cc.Key), observe.F("attempt", n+1), observe.F("delay", delay), observe.Err(err))
		return future.Delay(delay).Then(func(any) (any, error) {
			return r.attempt(ctx, cc, next, n+1), nil
		}, nil), nil
	})
}
