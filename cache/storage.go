package cache

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/cachepipe/observe"
)

// DataKeyPrefix namespaces cached entries in the backend, keeping them apart
// from tag tokens, breaker records and locks sharing the same keyspace.
const DataKeyPrefix = "d:"

// DataKey returns the backend key holding key's entry.
func DataKey(key string) string {
	return DataKeyPrefix + key
}

// Storage applies caching policy on top of a Backend.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Get returns (nil, nil) on a miss, including decompression failures and,
//   under Options.FailSafe, backend errors.
// - Serialization failures always propagate.
type Storage struct {
	backend    Backend
	serializer Serializer
	logger     observe.Logger
	now        func() time.Time
	tagFlight  singleflight.Group
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithSerializer sets the payload serializer. Default: MsgpackSerializer.
func WithSerializer(s Serializer) StorageOption {
	return func(st *Storage) {
		if s != nil {
			st.serializer = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observe.Logger) StorageOption {
	return func(st *Storage) { st.logger = observe.OrNop(l) }
}

// WithClock sets the clock used for logical expiry.
func WithClock(now func() time.Time) StorageOption {
	return func(st *Storage) {
		if now != nil {
			st.now = now
		}
	}
}

// NewStorage wraps backend.
func NewStorage(backend Backend, opts ...StorageOption) (*Storage, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	st := &Storage{
		backend:    backend,
		serializer: MsgpackSerializer{},
		logger:     observe.NopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(st)
	}
	return st, nil
}

// Backend returns the wrapped backend.
func (s *Storage) Backend() Backend { return s.backend }

// Serializer returns the payload serializer.
func (s *Storage) Serializer() Serializer { return s.serializer }

// Now returns the storage clock's current time.
func (s *Storage) Now() time.Time { return s.now() }

// Get returns the entry for key, or nil on a miss.
func (s *Storage) Get(ctx context.Context, key string, opts Options) (*CachedItem, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	raw, ok, err := s.backend.Get(ctx, DataKey(key))
	if err != nil {
		return nil, s.storageFailure(ctx, "get", key, opts, err)
	}
	if !ok {
		return nil, nil
	}
	return s.decode(ctx, key, raw)
}

// GetMultiple returns the entries found among keys. Misses are absent from
// the result. Uses the backend's bulk read when available.
func (s *Storage) GetMultiple(ctx context.Context, keys []string, opts Options) (map[string]*CachedItem, error) {
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			return nil, errors.Wrapf(err, "key %q", k)
		}
	}

	raws := make(map[string][]byte, len(keys))
	if mg, ok := s.backend.(MultiGetter); ok {
		dataKeys := make([]string, len(keys))
		for i, k := range keys {
			dataKeys[i] = DataKey(k)
		}
		found, err := mg.GetMultiple(ctx, dataKeys)
		if err != nil {
			return map[string]*CachedItem{}, s.storageFailure(ctx, "get_multiple", "", opts, err)
		}
		for k, raw := range found {
			raws[strings.TrimPrefix(k, DataKeyPrefix)] = raw
		}
	} else {
		for _, k := range keys {
			raw, ok, err := s.backend.Get(ctx, DataKey(k))
			if err != nil {
				if ferr := s.storageFailure(ctx, "get_multiple", k, opts, err); ferr != nil {
					return nil, ferr
				}
				continue
			}
			if ok {
				raws[k] = raw
			}
		}
	}

	out := make(map[string]*CachedItem, len(raws))
	for k, raw := range raws {
		item, err := s.decode(ctx, k, raw)
		if err != nil {
			return nil, err
		}
		if item != nil {
			out[k] = item
		}
	}
	return out, nil
}

// Set writes data for key. It returns false without error when caching is
// disabled by opts, or when a backend error is swallowed under FailSafe.
func (s *Storage) Set(ctx context.Context, key string, data any, opts Options, generationTime time.Duration) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if !opts.ShouldCache() {
		return false, nil
	}

	payload, err := s.serializer.Serialize(data)
	if err != nil {
		return false, newError("set", key, ErrSerialization, err)
	}

	compressed := false
	if opts.Compression && len(payload) >= opts.CompressionThreshold {
		zipped, err := gzipBytes(payload)
		if err != nil {
			return false, newError("set", key, ErrSerialization, errors.Wrap(err, "compress payload"))
		}
		payload, compressed = zipped, true
	}

	tagVersions, err := s.FetchTagVersions(ctx, opts.Tags)
	if err != nil {
		return false, s.storageFailure(ctx, "set", key, opts, err)
	}

	raw, err := encodeEnvelope(envelope{
		Version:        VersionCurrent,
		Payload:        payload,
		ExpireAt:       s.now().Add(opts.TTL).UnixNano(),
		Compressed:     compressed,
		GenerationTime: int64(generationTime),
		TagVersions:    tagVersions,
	})
	if err != nil {
		return false, newError("set", key, ErrSerialization, err)
	}

	if err := s.backend.Set(ctx, DataKey(key), raw, opts.PhysicalTTL()); err != nil {
		return false, s.storageFailure(ctx, "set", key, opts, err)
	}
	return true, nil
}

// Delete removes key.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, DataKey(key)); err != nil {
		return newError("delete", key, ErrStorage, err)
	}
	return nil
}

// Clear removes every entry, including tag tokens.
func (s *Storage) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return newError("clear", "", ErrStorage, err)
	}
	return nil
}

func (s *Storage) decode(ctx context.Context, key string, raw []byte) (*CachedItem, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, newError("get", key, ErrSerialization, err)
	}

	payload := env.Payload
	if env.Compressed {
		inflated, err := gunzipBytes(payload)
		if err != nil {
			s.logger.Warn(ctx, "cache.storage.decompress_failed", observe.F("key", key), observe.Err(err))
			return nil, nil
		}
		payload = inflated
	}

	data, err := s.serializer.Deserialize(payload)
	if err != nil {
		if errors.Is(err, ErrDecompression) {
			s.logger.Warn(ctx, "cache.storage.decompress_failed", observe.F("key", key), observe.Err(err))
			return nil, nil
		}
		return nil, newError("get", key, ErrSerialization, err)
	}

	return &CachedItem{
		Data:              data,
		LogicalExpireTime: time.Unix(0, env.ExpireAt),
		Version:           env.Version,
		IsCompressed:      env.Compressed,
		GenerationTime:    time.Duration(env.GenerationTime),
		TagVersions:       env.TagVersions,
	}, nil
}

// storageFailure logs and swallows err under FailSafe, otherwise wraps it.
func (s *Storage) storageFailure(ctx context.Context, op, key string, opts Options, err error) error {
	if opts.FailSafe {
		s.logger.Warn(ctx, "cache.storage.failed",
			observe.F("op", op), observe.F("key", key), observe.Err(err))
		return nil
	}
	return newError(op, key, ErrStorage, err)
}
