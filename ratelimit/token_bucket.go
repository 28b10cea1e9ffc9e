package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucketConfig configures a TokenBucket.
type TokenBucketConfig struct {
	// Rate is the number of tokens added per second.
	// Default: 100
	Rate float64

	// Burst is the bucket capacity.
	// Default: 10
	Burst int

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// TokenBucket keeps one bucket per key.
type TokenBucket struct {
	config TokenBucketConfig

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens      float64
	lastRefresh time.Time
}

// NewTokenBucket creates a token bucket limiter.
func NewTokenBucket(config TokenBucketConfig) *TokenBucket {
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &TokenBucket{
		config:  config,
		buckets: make(map[string]*bucket),
	}
}

// IsLimited reports whether key has less than one token.
func (tb *TokenBucket) IsLimited(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.refillLocked(key).tokens < 1, nil
}

// RecordExecution consumes one token. The bucket never goes negative.
func (tb *TokenBucket) RecordExecution(_ context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	b := tb.refillLocked(key)
	b.tokens--
	if b.tokens < 0 {
		b.tokens = 0
	}
	return nil
}

// Clear refills key's bucket, or drops every bucket when key is empty.
func (tb *TokenBucket) Clear(_ context.Context, key string) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if key == "" {
		clear(tb.buckets)
		return nil
	}
	delete(tb.buckets, key)
	return nil
}

// Tokens returns the tokens currently available for key.
func (tb *TokenBucket) Tokens(key string) float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.refillLocked(key).tokens
}

func (tb *TokenBucket) refillLocked(key string) *bucket {
	now := tb.config.Now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.config.Burst), lastRefresh: now}
		tb.buckets[key] = b
		return b
	}

	elapsed := now.Sub(b.lastRefresh)
	if elapsed > 0 {
		b.tokens += elapsed.Seconds() * tb.config.Rate
		b.lastRefresh = now
	}
	if b.tokens > float64(tb.config.Burst) {
		b.tokens = float64(tb.config.Burst)
	}
	return b
}

var _ Limiter = (*TokenBucket)(nil)
