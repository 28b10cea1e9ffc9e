package observe

import (
	"context"
	"sync"
	"time"
)

// EventKind classifies a resolution outcome.
type EventKind int

const (
	// EventHit means a fresh cached value was served.
	EventHit EventKind = iota
	// EventMiss means no usable cached value existed.
	EventMiss
	// EventStale means an expired value was served.
	EventStale
	// EventBypass means the cache was skipped (force refresh or caching disabled).
	EventBypass
	// EventXFetch means a fresh value was refreshed early by probabilistic expiration.
	EventXFetch
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventHit:
		return "hit"
	case EventMiss:
		return "miss"
	case EventStale:
		return "stale"
	case EventBypass:
		return "bypass"
	case EventXFetch:
		return "xfetch"
	default:
		return "unknown"
	}
}

// Event describes one resolution outcome.
type Event struct {
	Kind    EventKind     `msgpack:"kind"`
	Key     string        `msgpack:"key"`
	Latency time.Duration `msgpack:"latency"`
	Tags    []string      `msgpack:"tags,omitempty"`
}

// EventSink receives resolution events.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Dispatch must return quickly and must not panic; it is never on the decision path.
type EventSink interface {
	Dispatch(ctx context.Context, event Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, event Event)

// Dispatch calls f.
func (f SinkFunc) Dispatch(ctx context.Context, event Event) {
	f(ctx, event)
}

// NopSink returns a sink that drops every event.
func NopSink() EventSink {
	return SinkFunc(func(context.Context, Event) {})
}

// MultiSink fans events out to every non-nil sink in order.
func MultiSink(sinks ...EventSink) EventSink {
	filtered := make([]EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return SinkFunc(func(ctx context.Context, event Event) {
		for _, s := range filtered {
			s.Dispatch(ctx, event)
		}
	})
}

// RecordingSink keeps every event in memory. Useful in tests and debugging tools.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

// Dispatch records event.
func (r *RecordingSink) Dispatch(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *RecordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *RecordingSink) Kinds() []EventKind {
	events := r.Events()
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}
