package future

import "github.com/cockroachdb/errors"

// Sentinel errors for future operations.
var (
	// ErrNilReason replaces a nil error passed to Reject.
	ErrNilReason = errors.New("future: rejected with nil reason")

	// ErrNilFuture is returned when a producer yields a nil *Future.
	ErrNilFuture = errors.New("future: nil future")

	// ErrPanic wraps a value recovered from a panicking handler or producer.
	ErrPanic = errors.New("future: handler panicked")
)

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return errors.Wrapf(ErrPanic, "%v", err)
	}
	return errors.Wrapf(ErrPanic, "%v", r)
}
