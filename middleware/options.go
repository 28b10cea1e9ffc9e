package middleware

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonwraymond/cachepipe/observe"
	"github.com/jonwraymond/cachepipe/pipeline"
)

// Option configures the collaborators shared by every middleware.
type Option func(*settings)

type settings struct {
	logger observe.Logger
	sink   observe.EventSink
	now    func() time.Time
	rand   func() float64
}

func newSettings(opts []Option) settings {
	s := settings{
		logger: observe.NopLogger(),
		sink:   observe.NopSink(),
		now:    time.Now,
		// #nosec G404 -- early expiration needs uniform draws, not secrecy.
		rand: rand.Float64,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l observe.Logger) Option {
	return func(s *settings) { s.logger = observe.OrNop(l) }
}

// WithEventSink sets the sink that receives resolution events.
func WithEventSink(sink observe.EventSink) Option {
	return func(s *settings) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRand sets the uniform [0,1) source used for early expiration.
func WithRand(fn func() float64) Option {
	return func(s *settings) {
		if fn != nil {
			s.rand = fn
		}
	}
}

func (s settings) emit(ctx context.Context, kind observe.EventKind, cc *pipeline.Context) {
	s.sink.Dispatch(ctx, observe.Event{
		Kind:    kind,
		Key:     cc.Key,
		Latency: cc.Elapsed(s.now()),
		Tags:    cc.Options.Tags,
	})
}
