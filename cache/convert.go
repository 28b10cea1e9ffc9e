package cache

import (
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Decode converts a cached value into T. Values already of type T are
// returned as-is; generic decoded forms (maps, slices, wider integers) are
// converted by a msgpack round trip.
func Decode[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}

	data, err := msgpack.Marshal(v)
	if err != nil {
		return zero, newError("decode", "", ErrSerialization, err)
	}
	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return zero, newError("decode", "", ErrSerialization, errors.Wrapf(err, "into %T", out))
	}
	return out, nil
}
