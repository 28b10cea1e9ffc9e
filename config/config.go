package config

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/cachepipe/cache"
)

// Config is the file form of a cachepipe deployment.
type Config struct {
	Service   string                    `yaml:"service"`
	Version   string                    `yaml:"version,omitempty"`
	Secrets   map[string]map[string]any `yaml:"secrets,omitempty"`
	Backend   BackendConfig             `yaml:"backend"`
	Defaults  DefaultsConfig            `yaml:"defaults"`
	Lock      LockConfig                `yaml:"lock"`
	RateLimit RateLimitConfig           `yaml:"rate_limit"`
	Breaker   BreakerConfig             `yaml:"breaker"`
	Retry     RetryConfig               `yaml:"retry"`
	Fetch     FetchConfig               `yaml:"fetch"`
	Events    EventsConfig              `yaml:"events"`
	Observe   ObserveConfig             `yaml:"observe"`
	Health    HealthConfig              `yaml:"health"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	// Type is memory or redis. Default: memory
	Type string `yaml:"type"`

	Redis RedisConfig `yaml:"redis"`

	// Serializer is msgpack or json. Default: msgpack
	Serializer string `yaml:"serializer"`

	// EncryptionKey is a hex-encoded 32-byte key. When set, payloads are
	// sealed at rest.
	EncryptionKey string `yaml:"encryption_key,omitempty"`
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	Addrs        []string `yaml:"addrs"`
	Username     string   `yaml:"username,omitempty"`
	Password     string   `yaml:"password,omitempty"`
	DB           int      `yaml:"db"`
	Prefix       string   `yaml:"prefix"`
	QueryTimeout Duration `yaml:"query_timeout"`
}

// DefaultsConfig holds the resolver's default cache options.
type DefaultsConfig struct {
	TTL                  *Duration `yaml:"ttl"`
	StaleGracePeriod     Duration  `yaml:"stale_grace_period"`
	ServeStaleIfLimited  bool      `yaml:"serve_stale_if_limited"`
	Strategy             string    `yaml:"strategy"`
	Compression          bool      `yaml:"compression"`
	CompressionThreshold int       `yaml:"compression_threshold"`
	FailSafe             *bool     `yaml:"fail_safe"`
	XFetchBeta           *float64  `yaml:"xfetch_beta"`
}

// LockConfig selects the lock provider and its timings.
type LockConfig struct {
	// Backend is memory or redis. Default: follows backend.type
	Backend      string   `yaml:"backend"`
	TTL          Duration `yaml:"ttl"`
	WaitTimeout  Duration `yaml:"wait_timeout"`
	PollInterval Duration `yaml:"poll_interval"`
}

// RateLimitConfig selects the limiter.
type RateLimitConfig struct {
	// Type is none, token_bucket, fixed_interval or redis. Default: none
	Type     string   `yaml:"type"`
	Rate     float64  `yaml:"rate"`
	Burst    int      `yaml:"burst"`
	Interval Duration `yaml:"interval"`
	Limit    int64    `yaml:"limit"`
	Window   Duration `yaml:"window"`
}

// BreakerConfig configures per-key circuit breaking.
type BreakerConfig struct {
	// Enabled defaults to true.
	Enabled          *bool    `yaml:"enabled"`
	FailureThreshold int      `yaml:"failure_threshold"`
	RetryTimeout     Duration `yaml:"retry_timeout"`
	ProbeLockTTL     Duration `yaml:"probe_lock_ttl"`
}

// RetryConfig configures source retries. A negative MaxRetries disables them.
type RetryConfig struct {
	MaxRetries   int      `yaml:"max_retries"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	Multiplier   float64  `yaml:"multiplier"`
	Jitter       bool     `yaml:"jitter"`
}

// FetchConfig bounds source calls.
type FetchConfig struct {
	Timeout Duration `yaml:"timeout"`

	// MaxConcurrent caps concurrent source calls. Zero means no cap.
	MaxConcurrent int      `yaml:"max_concurrent"`
	MaxWait       Duration `yaml:"max_wait"`
}

// EventsConfig configures event fan-out.
type EventsConfig struct {
	// RedisChannel publishes events over Redis pub/sub when set. Requires
	// a redis backend.
	RedisChannel string `yaml:"redis_channel,omitempty"`
}

// ObserveConfig mirrors observe.Config.
type ObserveConfig struct {
	Tracing struct {
		Enabled   bool    `yaml:"enabled"`
		Exporter  string  `yaml:"exporter"`
		SamplePct float64 `yaml:"sample_pct"`
	} `yaml:"tracing"`
	Metrics struct {
		Enabled  bool   `yaml:"enabled"`
		Exporter string `yaml:"exporter"`
	} `yaml:"metrics"`
	Logging struct {
		Enabled bool   `yaml:"enabled"`
		Level   string `yaml:"level"`
	} `yaml:"logging"`
}

// HealthConfig configures the health aggregator.
type HealthConfig struct {
	Timeout Duration `yaml:"timeout"`

	// BreakerKeys are the cache keys whose circuits the breaker check watches.
	BreakerKeys []string `yaml:"breaker_keys,omitempty"`

	// MaxEntries is the memory backend's expected capacity.
	MaxEntries int `yaml:"max_entries"`
}

// LoadOption configures Load and Parse.
type LoadOption func(*loadOptions)

type loadOptions struct {
	registry  *Registry
	providers []SecretProvider
	strict    bool
}

// WithRegistry resolves `secrets:` sections against reg instead of DefaultRegistry.
func WithRegistry(reg *Registry) LoadOption {
	return func(o *loadOptions) {
		if reg != nil {
			o.registry = reg
		}
	}
}

// WithSecretProviders adds providers available to secret references.
func WithSecretProviders(providers ...SecretProvider) LoadOption {
	return func(o *loadOptions) {
		o.providers = append(o.providers, providers...)
	}
}

// WithLenientSecrets allows secret references that resolve to "".
func WithLenientSecrets() LoadOption {
	return func(o *loadOptions) {
		o.strict = false
	}
}

// Load reads and parses the file at path.
func Load(ctx context.Context, path string, opts ...LoadOption) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	cfg, err := Parse(ctx, data, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "config: %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML, expanding every string scalar, applies defaults and
// validates the result.
func Parse(ctx context.Context, data []byte, opts ...LoadOption) (*Config, error) {
	o := loadOptions{registry: DefaultRegistry, strict: true}
	for _, opt := range opts {
		opt(&o)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, "config: parse yaml")
	}

	resolver, err := o.secretResolver(&root)
	if err != nil {
		return nil, err
	}
	if err := expandNode(ctx, &root, resolver); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if root.Kind != 0 {
		if err := root.Decode(cfg); err != nil {
			return nil, errors.Wrap(err, "config: decode")
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// secretResolver builds the providers named by the `secrets:` section,
// then adds the built-in and explicitly supplied ones.
func (o loadOptions) secretResolver(root *yaml.Node) (*SecretResolver, error) {
	var head struct {
		Secrets map[string]map[string]any `yaml:"secrets"`
	}
	if root.Kind != 0 {
		if err := root.Decode(&head); err != nil {
			return nil, errors.Wrap(err, "config: decode secrets")
		}
	}

	resolver := NewSecretResolver(o.strict)
	for _, name := range o.registry.List() {
		if _, configured := head.Secrets[name]; configured {
			continue
		}
		p, err := o.registry.Create(name, nil)
		if err != nil {
			return nil, err
		}
		resolver.Register(p)
	}
	for name, section := range head.Secrets {
		p, err := o.registry.Create(name, section)
		if err != nil {
			return nil, err
		}
		resolver.Register(p)
	}
	for _, p := range o.providers {
		resolver.Register(p)
	}
	return resolver, nil
}

// expandNode resolves every string scalar under n in place. The secrets
// section is left literal.
func expandNode(ctx context.Context, n *yaml.Node, r *SecretResolver) error {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			if err := expandNode(ctx, c, r); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == "secrets" {
				continue
			}
			if err := expandNode(ctx, n.Content[i+1], r); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if n.Tag != "!!str" {
			return nil
		}
		out, err := r.ResolveValue(ctx, n.Value)
		if err != nil {
			return errors.Wrapf(err, "config: line %d", n.Line)
		}
		n.Value = out
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Service == "" {
		c.Service = "cachepipe"
	}
	if c.Backend.Type == "" {
		c.Backend.Type = "memory"
	}
	if c.Backend.Serializer == "" {
		c.Backend.Serializer = "msgpack"
	}
	if c.Backend.Type == "redis" && len(c.Backend.Redis.Addrs) == 0 {
		c.Backend.Redis.Addrs = []string{"localhost:6379"}
	}
	if c.Lock.Backend == "" {
		c.Lock.Backend = c.Backend.Type
	}
	if c.RateLimit.Type == "" {
		c.RateLimit.Type = "none"
	}
	if c.Breaker.Enabled == nil {
		enabled := true
		c.Breaker.Enabled = &enabled
	}
	if c.Observe.Logging.Level == "" {
		c.Observe.Logging.Level = "info"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Backend.Type {
	case "memory", "redis":
	default:
		return errors.Wrapf(ErrInvalidConfig, "backend.type %q", c.Backend.Type)
	}
	switch c.Backend.Serializer {
	case "msgpack", "json":
	default:
		return errors.Wrapf(ErrInvalidConfig, "backend.serializer %q", c.Backend.Serializer)
	}
	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if c.Backend.Type != "redis" {
			return errors.Wrap(ErrInvalidConfig, "lock.backend redis requires backend.type redis")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "lock.backend %q", c.Lock.Backend)
	}
	switch c.RateLimit.Type {
	case "none", "token_bucket", "fixed_interval":
	case "redis":
		if c.Backend.Type != "redis" {
			return errors.Wrap(ErrInvalidConfig, "rate_limit.type redis requires backend.type redis")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "rate_limit.type %q", c.RateLimit.Type)
	}
	if c.RateLimit.Type == "fixed_interval" && c.RateLimit.Interval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "rate_limit.interval must be positive")
	}
	if c.Events.RedisChannel != "" && c.Backend.Type != "redis" {
		return errors.Wrap(ErrInvalidConfig, "events.redis_channel requires backend.type redis")
	}
	if _, err := cache.ParseStrategy(c.Defaults.Strategy); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "defaults.strategy %q", c.Defaults.Strategy)
	}
	if err := c.CacheOptions().Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "defaults: %v", err)
	}
	return nil
}

// CacheOptions converts Defaults into cache.Options over cache.DefaultOptions.
func (c *Config) CacheOptions() cache.Options {
	d := c.Defaults
	opts := cache.DefaultOptions()
	if d.TTL != nil {
		opts.TTL = d.TTL.Std()
	}
	opts.StaleGracePeriod = d.StaleGracePeriod.Std()
	opts.ServeStaleIfLimited = d.ServeStaleIfLimited
	if s, err := cache.ParseStrategy(d.Strategy); err == nil {
		opts.Strategy = s
	}
	opts.Compression = d.Compression
	if d.CompressionThreshold > 0 {
		opts.CompressionThreshold = d.CompressionThreshold
	}
	if d.FailSafe != nil {
		opts.FailSafe = *d.FailSafe
	}
	if d.XFetchBeta != nil {
		opts.XFetchBeta = *d.XFetchBeta
	}
	return opts
}
