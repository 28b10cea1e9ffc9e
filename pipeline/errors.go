package pipeline

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/jonwraymond/cachepipe/cache"
	"github.com/jonwraymond/cachepipe/resilience"
)

// Kind classifies resolution failures.
type Kind int

const (
	// KindUnknown is any failure without a classification.
	KindUnknown Kind = iota
	// KindRateLimitExceeded means the rate limiter refused the fetch and no
	// stale value could be served.
	KindRateLimitExceeded
	// KindLockTimeout means the key's lock was not freed in time.
	KindLockTimeout
	// KindCircuitOpen means the key's circuit is open.
	KindCircuitOpen
	// KindCircuitHalfOpen means another caller holds the half-open probe.
	KindCircuitHalfOpen
	// KindSourceFetch means the source failed.
	KindSourceFetch
	// KindStorage means the storage backend failed.
	KindStorage
	// KindDecompression means a stored payload could not be inflated.
	KindDecompression
	// KindSerialization means a value could not be encoded or decoded.
	KindSerialization
)

// Sentinel errors, one per Kind. errors.Is(err, ErrX) matches an *Error of
// the corresponding kind.
var (
	ErrRateLimitExceeded = errors.New("pipeline: rate limit exceeded")
	ErrLockTimeout       = errors.New("pipeline: lock wait timed out")
	ErrCircuitOpen       = errors.New("pipeline: circuit open")
	ErrCircuitHalfOpen   = errors.New("pipeline: circuit half-open probe in flight")
	ErrSourceFetch       = errors.New("pipeline: source fetch failed")
	ErrStorage           = errors.New("pipeline: storage failure")
	ErrDecompression     = errors.New("pipeline: decompression failure")
	ErrSerialization     = errors.New("pipeline: serialization failure")
	ErrUnknown           = errors.New("pipeline: resolution failed")

	// ErrNilHandler is returned when a pipeline stage is nil.
	ErrNilHandler = errors.New("pipeline: handler is nil")
	// ErrNilSource is returned when a resolution has no Source.
	ErrNilSource = errors.New("pipeline: source is nil")
	// ErrFetchTimeout is returned when a source does not settle in time.
	ErrFetchTimeout = errors.New("pipeline: source fetch timed out")
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindLockTimeout:
		return "lock_timeout"
	case KindCircuitOpen:
		return "circuit_open"
	case KindCircuitHalfOpen:
		return "circuit_half_open"
	case KindSourceFetch:
		return "source_fetch_failed"
	case KindStorage:
		return "storage_failure"
	case KindDecompression:
		return "decompression_failure"
	case KindSerialization:
		return "serialization_failure"
	default:
		return "unknown"
	}
}

// Sentinel returns the sentinel error matched by errors of kind k.
func (k Kind) Sentinel() error {
	switch k {
	case KindRateLimitExceeded:
		return ErrRateLimitExceeded
	case KindLockTimeout:
		return ErrLockTimeout
	case KindCircuitOpen:
		return ErrCircuitOpen
	case KindCircuitHalfOpen:
		return ErrCircuitHalfOpen
	case KindSourceFetch:
		return ErrSourceFetch
	case KindStorage:
		return ErrStorage
	case KindDecompression:
		return ErrDecompression
	case KindSerialization:
		return ErrSerialization
	default:
		return ErrUnknown
	}
}

// Error is a classified resolution failure.
type Error struct {
	Kind Kind
	Key  string
	Err  error
}

// NewError returns an *Error of kind for key. A nil err defaults to the
// kind's sentinel.
func NewError(kind Kind, key string, err error) *Error {
	if err == nil {
		err = kind.Sentinel()
	}
	return &Error{Kind: kind, Key: key, Err: err}
}

func (e *Error) Error() string {
	sentinel := e.Kind.Sentinel()
	if e.Err == sentinel {
		return fmt.Sprintf("%v: key %q", sentinel, e.Key)
	}
	return fmt.Sprintf("%v: key %q: %v", sentinel, e.Key, e.Err)
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors from the cache and resilience packages are
// mapped to their kinds even when not wrapped in an *Error.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, cache.ErrDecompression):
		return KindDecompression
	case errors.Is(err, cache.ErrSerialization):
		return KindSerialization
	case errors.Is(err, cache.ErrStorage):
		return KindStorage
	case errors.Is(err, resilience.ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, resilience.ErrCircuitHalfOpen):
		return KindCircuitHalfOpen
	default:
		return KindUnknown
	}
}

// Classify wraps err in an *Error for key using KindOf. Errors that are
// already an *Error are returned unchanged; unclassified errors become
// fallback.
func Classify(key string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	kind := KindOf(err)
	if kind == KindUnknown {
		kind = fallback
	}
	return NewError(kind, key, err)
}

// IsRetryable reports whether err is a transient failure worth retrying:
// source and storage failures are, everything else is not.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindSourceFetch, KindStorage:
		return true
	default:
		return false
	}
}
