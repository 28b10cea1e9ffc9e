package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const memoryShards = 32

// MemoryBackend is an in-process Backend. Keys are spread over shards by
// xxhash so unrelated keys do not contend on one mutex.
type MemoryBackend struct {
	shards [memoryShards]*memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithMemoryClock sets the clock used for expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		if now != nil {
			b.now = now
		}
	}
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{now: time.Now}
	for i := range b.shards {
		b.shards[i] = &memoryShard{entries: make(map[string]memoryEntry)}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBackend) shard(key string) *memoryShard {
	return b.shards[xxhash.Sum64String(key)%memoryShards]
}

// Get returns a copy of the stored value. Expired entries are evicted lazily.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	s := b.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !b.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value. ttl <= 0 means no expiry.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = b.now().Add(ttl)
	}

	s := b.shard(key)
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Delete removes key. Idempotent.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	s := b.shard(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Clear removes every entry.
func (b *MemoryBackend) Clear(_ context.Context) error {
	for _, s := range b.shards {
		s.mu.Lock()
		clear(s.entries)
		s.mu.Unlock()
	}
	return nil
}

// GetMultiple returns the live entries among keys.
func (b *MemoryBackend) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, ok, _ := b.Get(ctx, k)
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (b *MemoryBackend) Len() int {
	n := 0
	for _, s := range b.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

var (
	_ Backend     = (*MemoryBackend)(nil)
	_ MultiGetter = (*MemoryBackend)(nil)
)
