package cache

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Envelope format versions.
const (
	// VersionLegacy is a two-field [payload, expiry-unix-seconds] array.
	VersionLegacy = 1
	// VersionCurrent is the envelope written by Storage.Set.
	VersionCurrent = 2
)

// CachedItem is one stored entry. Items are created by Storage on a
// successful fetch and replaced, never mutated, by the next one.
type CachedItem struct {
	Data              any
	LogicalExpireTime time.Time
	Version           int
	IsCompressed      bool
	GenerationTime    time.Duration
	TagVersions       map[string]string
}

// IsFresh reports whether now is before the logical expiry.
func (i *CachedItem) IsFresh(now time.Time) bool {
	return now.Before(i.LogicalExpireTime)
}

// envelope is the persisted form of a CachedItem. Payload holds the
// serialized (and possibly gzipped) data.
type envelope struct {
	Version        int               `msgpack:"v"`
	Payload        []byte            `msgpack:"p"`
	ExpireAt       int64             `msgpack:"e"`
	Compressed     bool              `msgpack:"c"`
	GenerationTime int64             `msgpack:"g"`
	TagVersions    map[string]string `msgpack:"t,omitempty"`
}

func encodeEnvelope(env envelope) ([]byte, error) {
	return msgpack.Marshal(&env)
}

// decodeEnvelope reads the current envelope or migrates the legacy
// [payload, expiry] array.
func decodeEnvelope(raw []byte) (envelope, error) {
	var probe any
	if err := msgpack.Unmarshal(raw, &probe); err != nil {
		return envelope{}, err
	}

	if arr, ok := probe.([]any); ok {
		return migrateLegacy(arr)
	}

	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return envelope{}, err
	}
	if env.Version == 0 {
		env.Version = VersionCurrent
	}
	return env, nil
}

func migrateLegacy(arr []any) (envelope, error) {
	if len(arr) != 2 {
		return envelope{}, errors.Newf("legacy entry has %d fields, want 2", len(arr))
	}

	var payload []byte
	switch v := arr[0].(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		return envelope{}, errors.Newf("legacy payload has type %T", arr[0])
	}

	expiry, ok := toInt64(arr[1])
	if !ok {
		return envelope{}, errors.Newf("legacy expiry has type %T", arr[1])
	}

	return envelope{
		Version:  VersionLegacy,
		Payload:  payload,
		ExpireAt: time.Unix(expiry, 0).UnixNano(),
	}, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	default:
		return 0, false
	}
}
