package cache

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidKey     = errors.New("cache: key is invalid")
	ErrKeyTooLong     = errors.New("cache: key exceeds max length")
	ErrNilBackend     = errors.New("cache: backend is nil")
	ErrInvalidOptions = errors.New("cache: invalid options")

	// ErrStorage marks a failure reported by the backend.
	ErrStorage = errors.New("cache: storage failure")

	// ErrDecompression marks a compressed payload that could not be inflated.
	ErrDecompression = errors.New("cache: decompression failure")

	// ErrSerialization marks a payload or envelope that could not be encoded or decoded.
	ErrSerialization = errors.New("cache: serialization failure")

	// ErrInvalidEncryptionKey is returned for keys that are not chacha20poly1305.KeySize bytes.
	ErrInvalidEncryptionKey = errors.New("cache: invalid encryption key")
)

// Error describes a failed storage operation.
// errors.Is matches both Kind and the underlying cause.
type Error struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%v: %s %q: %v", e.Kind, e.Op, e.Key, e.Err)
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, key string, kind, err error) *Error {
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}
