package lock

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const memoryShards = 16

// Memory is an in-process Provider.
type Memory struct {
	shards       [memoryShards]*memoryShard
	now          func() time.Time
	pollInterval time.Duration
}

type memoryShard struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

type memoryLock struct {
	token  string
	expiry time.Time
}

// MemoryOption configures a Memory provider.
type MemoryOption func(*Memory)

// WithClock sets the clock used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPollInterval sets the blocking retry interval.
func WithPollInterval(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// NewMemory creates an in-process lock provider.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{now: time.Now, pollInterval: DefaultPollInterval}
	for i := range m.shards {
		m.shards[i] = &memoryShard{locks: make(map[string]memoryLock)}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) shard(key string) *memoryShard {
	return m.shards[xxhash.Sum64String(key)%memoryShards]
}

// Acquire takes key for ttl.
func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration, blocking bool) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}
	if !blocking {
		token, ok := m.tryAcquire(key, ttl)
		return token, ok, nil
	}
	return poll(ctx, m.pollInterval, func() (string, bool, error) {
		token, ok := m.tryAcquire(key, ttl)
		return token, ok, nil
	})
}

func (m *Memory) tryAcquire(key string, ttl time.Duration) (string, bool) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := m.now()
	if l, held := s.locks[key]; held && now.Before(l.expiry) {
		return "", false
	}
	token := uuid.NewString()
	s.locks[key] = memoryLock{token: token, expiry: now.Add(ttl)}
	return token, true
}

// Release frees key if token still owns it.
func (m *Memory) Release(_ context.Context, key, token string) error {
	if key == "" {
		return ErrInvalidKey
	}
	s := m.shard(key)
	s.mu.Lock()
	if l, held := s.locks[key]; held && l.token == token {
		delete(s.locks, key)
	}
	s.mu.Unlock()
	return nil
}

// Held reports whether key is currently locked.
func (m *Memory) Held(key string) bool {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, held := s.locks[key]
	return held && m.now().Before(l.expiry)
}

var _ Provider = (*Memory)(nil)
