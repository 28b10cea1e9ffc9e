package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jonwraymond/cachepipe/cache"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the source recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerKeyPrefix namespaces breaker records in the backend.
const BreakerKeyPrefix = "cb:"

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	// Default: 5
	FailureThreshold int

	// RetryTimeout is how long the circuit stays open before allowing a probe.
	// Default: 30 seconds
	RetryTimeout time.Duration

	// ProbeLockTTL bounds how long one half-open probe holds exclusivity.
	// Default: 10 seconds
	ProbeLockTTL time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = 30 * time.Second
	}
	if c.ProbeLockTTL <= 0 {
		c.ProbeLockTTL = 10 * time.Second
	}
	return c
}

// BreakerRecord is the persisted per-key breaker state.
type BreakerRecord struct {
	State           State     `msgpack:"state"`
	FailureCount    int       `msgpack:"failures"`
	LastFailureTime time.Time `msgpack:"last_failure"`
}

// Effective returns the state at now. An open record whose RetryTimeout has
// elapsed is reported as half-open.
func (r BreakerRecord) Effective(now time.Time, cfg BreakerConfig) State {
	if r.State == StateOpen && now.Sub(r.LastFailureTime) >= cfg.RetryTimeout {
		return StateHalfOpen
	}
	return r.State
}

// OnSuccess returns the record after a successful call: closed, counter reset.
func (r BreakerRecord) OnSuccess() BreakerRecord {
	return BreakerRecord{State: StateClosed}
}

// OnFailure returns the record after a failed call. A closed circuit opens
// when the counter reaches FailureThreshold; a failed probe reopens it.
func (r BreakerRecord) OnFailure(now time.Time, cfg BreakerConfig) BreakerRecord {
	r.FailureCount++
	r.LastFailureTime = now
	if r.State != StateClosed || r.FailureCount >= cfg.FailureThreshold {
		r.State = StateOpen
	}
	return r
}

const breakerStripes = 64

// BreakerStore persists breaker records in a cache.Backend.
// Updates from one process are serialised per key; across processes the
// last write wins.
type BreakerStore struct {
	backend cache.Backend
	cfg     BreakerConfig
	stripes [breakerStripes]sync.Mutex
}

// NewBreakerStore creates a store. Zero config fields take defaults.
func NewBreakerStore(backend cache.Backend, cfg BreakerConfig) (*BreakerStore, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	return &BreakerStore{backend: backend, cfg: cfg.withDefaults()}, nil
}

// Config returns the effective configuration.
func (s *BreakerStore) Config() BreakerConfig {
	return s.cfg
}

// RecordKey returns the backend key for key's record.
func RecordKey(key string) string {
	return BreakerKeyPrefix + key
}

// Load returns key's record. Missing records are closed.
func (s *BreakerStore) Load(ctx context.Context, key string) (BreakerRecord, error) {
	raw, ok, err := s.backend.Get(ctx, RecordKey(key))
	if err != nil {
		return BreakerRecord{}, errors.Wrapf(err, "resilience: load breaker %q", key)
	}
	if !ok {
		return BreakerRecord{State: StateClosed}, nil
	}
	var rec BreakerRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return BreakerRecord{}, errors.Wrapf(err, "resilience: decode breaker %q", key)
	}
	return rec, nil
}

// Save writes key's record without expiry.
func (s *BreakerStore) Save(ctx context.Context, key string, rec BreakerRecord) error {
	raw, err := msgpack.Marshal(&rec)
	if err != nil {
		return errors.Wrapf(err, "resilience: encode breaker %q", key)
	}
	if err := s.backend.Set(ctx, RecordKey(key), raw, 0); err != nil {
		return errors.Wrapf(err, "resilience: save breaker %q", key)
	}
	return nil
}

// Update applies fn to key's record and saves the result.
func (s *BreakerStore) Update(ctx context.Context, key string, fn func(BreakerRecord) BreakerRecord) (BreakerRecord, error) {
	mu := &s.stripes[xxhash.Sum64String(key)%breakerStripes]
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.Load(ctx, key)
	if err != nil {
		return BreakerRecord{}, err
	}
	rec = fn(rec)
	if err := s.Save(ctx, key, rec); err != nil {
		return BreakerRecord{}, err
	}
	return rec, nil
}

// Reset closes key's circuit by deleting its record.
func (s *BreakerStore) Reset(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, RecordKey(key)); err != nil {
		return errors.Wrapf(err, "resilience: reset breaker %q", key)
	}
	return nil
}
