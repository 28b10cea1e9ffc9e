package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedInterval admits at most one execution per key every Interval.
type FixedInterval struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewFixedInterval creates a limiter. A nil now uses time.Now.
func NewFixedInterval(interval time.Duration, now func() time.Time) *FixedInterval {
	if now == nil {
		now = time.Now
	}
	return &FixedInterval{
		interval: interval,
		now:      now,
		last:     make(map[string]time.Time),
	}
}

// IsLimited reports whether key ran less than Interval ago.
func (f *FixedInterval) IsLimited(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.last[key]
	if !ok {
		return false, nil
	}
	return f.now().Sub(last) < f.interval, nil
}

// RecordExecution stamps key with the current time.
func (f *FixedInterval) RecordExecution(_ context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	f.mu.Lock()
	f.last[key] = f.now()
	f.mu.Unlock()
	return nil
}

// Clear forgets key, or every key when key is empty.
func (f *FixedInterval) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == "" {
		clear(f.last)
		return nil
	}
	delete(f.last, key)
	return nil
}

var _ Limiter = (*FixedInterval)(nil)
