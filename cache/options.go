package cache

import (
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Strategy selects how the lookup stage treats cached entries.
type Strategy int

const (
	// StrategyStrict serves fresh entries and fetches synchronously otherwise.
	StrategyStrict Strategy = iota
	// StrategyBackground serves stale entries immediately and refreshes in the background.
	StrategyBackground
	// StrategyForceRefresh skips the lookup and always fetches.
	StrategyForceRefresh
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyStrict:
		return "strict"
	case StrategyBackground:
		return "background"
	case StrategyForceRefresh:
		return "force_refresh"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name. Matching is case-insensitive and
// accepts "-" in place of "_".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "strict":
		return StrategyStrict, nil
	case "background":
		return StrategyBackground, nil
	case "force_refresh", "forcerefresh":
		return StrategyForceRefresh, nil
	default:
		return StrategyStrict, errors.Wrapf(ErrInvalidOptions, "unknown strategy %q", s)
	}
}

// Options is the per-request caching policy. Build it with NewOptions; the
// value is copied into each resolution and never mutated afterwards.
type Options struct {
	// TTL is the logical freshness window. Zero disables caching.
	// Default: 5 minutes
	TTL time.Duration

	// StaleGracePeriod keeps an entry readable after TTL so it can be served stale.
	// Default: 0
	StaleGracePeriod time.Duration

	// ServeStaleIfLimited serves a stale entry instead of failing when rate limited.
	// Default: false
	ServeStaleIfLimited bool

	// Strategy selects lookup behaviour.
	// Default: StrategyStrict
	Strategy Strategy

	// Compression gzips payloads of at least CompressionThreshold bytes.
	// Default: false, 1024 bytes
	Compression          bool
	CompressionThreshold int

	// FailSafe treats backend errors as misses instead of failing.
	// Default: true
	FailSafe bool

	// XFetchBeta scales probabilistic early refresh. Zero disables it.
	// Default: 1.0
	XFetchBeta float64

	// RateLimitKey groups requests for admission control. Empty disables rate limiting.
	RateLimitKey string

	// Tags attach the entry to invalidation groups.
	Tags []string
}

// Option configures Options.
type Option func(*Options)

// DefaultOptions returns the default policy.
func DefaultOptions() Options {
	return Options{
		TTL:                  5 * time.Minute,
		Strategy:             StrategyStrict,
		CompressionThreshold: 1024,
		FailSafe:             true,
		XFetchBeta:           1.0,
	}
}

// NewOptions applies opts to DefaultOptions.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.Tags = slices.Clone(o.Tags)
	return o
}

// WithTTL sets the logical TTL. Zero disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = ttl }
}

// WithStaleGracePeriod sets how long an entry outlives its logical TTL.
func WithStaleGracePeriod(d time.Duration) Option {
	return func(o *Options) { o.StaleGracePeriod = d }
}

// WithServeStaleIfLimited enables serving stale entries under rate limiting.
func WithServeStaleIfLimited(enabled bool) Option {
	return func(o *Options) { o.ServeStaleIfLimited = enabled }
}

// WithStrategy sets the lookup strategy.
func WithStrategy(s Strategy) Option {
	return func(o *Options) { o.Strategy = s }
}

// WithCompression enables compression for payloads of at least threshold bytes.
// A non-positive threshold keeps the current value.
func WithCompression(threshold int) Option {
	return func(o *Options) {
		o.Compression = true
		if threshold > 0 {
			o.CompressionThreshold = threshold
		}
	}
}

// WithFailSafe toggles fail-safe backend error handling.
func WithFailSafe(enabled bool) Option {
	return func(o *Options) { o.FailSafe = enabled }
}

// WithXFetchBeta sets the early refresh factor. Zero disables early refresh.
func WithXFetchBeta(beta float64) Option {
	return func(o *Options) { o.XFetchBeta = beta }
}

// WithRateLimitKey sets the admission control group.
func WithRateLimitKey(key string) Option {
	return func(o *Options) { o.RateLimitKey = key }
}

// WithTags appends invalidation tags.
func WithTags(tags ...string) Option {
	return func(o *Options) { o.Tags = append(o.Tags, tags...) }
}

// ShouldCache reports whether results may be written.
func (o Options) ShouldCache() bool {
	return o.TTL > 0
}

// PhysicalTTL is how long the backend retains an entry.
func (o Options) PhysicalTTL() time.Duration {
	if !o.ShouldCache() {
		return 0
	}
	return o.TTL + o.StaleGracePeriod
}

// Validate checks invariants.
func (o Options) Validate() error {
	switch {
	case o.TTL < 0:
		return errors.Wrapf(ErrInvalidOptions, "ttl must be >= 0, got %v", o.TTL)
	case o.StaleGracePeriod < 0:
		return errors.Wrapf(ErrInvalidOptions, "stale grace period must be >= 0, got %v", o.StaleGracePeriod)
	case o.CompressionThreshold < 0:
		return errors.Wrapf(ErrInvalidOptions, "compression threshold must be >= 0, got %d", o.CompressionThreshold)
	case o.XFetchBeta < 0:
		return errors.Wrapf(ErrInvalidOptions, "x-fetch beta must be >= 0, got %v", o.XFetchBeta)
	case o.Strategy < StrategyStrict || o.Strategy > StrategyForceRefresh:
		return errors.Wrapf(ErrInvalidOptions, "unknown strategy %d", int(o.Strategy))
	}
	for _, tag := range o.Tags {
		if err := ValidateKey(tag); err != nil {
			return errors.Wrapf(err, "tag %q", tag)
		}
	}
	return nil
}
