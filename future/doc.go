// Package future provides a minimal settle-once asynchronous value container.
//
// A Future starts pending and settles exactly once, either fulfilled with a
// value or rejected with an error. Handlers registered with Then fire in
// registration order when the Future settles; handlers registered on an
// already-settled Future fire immediately in the caller's goroutine.
//
// # Chaining
//
// Then returns a new Future representing the handler's own outcome. A handler
// that returns an error (or panics) rejects the derived Future. A handler that
// returns a *Future makes the derived Future adopt that Future's outcome,
// which is how retries and delays are expressed without blocking:
//
//	f := fetch().Catch(func(err error) (any, error) {
//	    return future.Delay(100 * time.Millisecond).Then(func(any) (any, error) {
//	        return fetch(), nil
//	    }, nil), nil
//	})
//
// # Waiting
//
// Wait blocks until the Future settles. A Future built with NewWithDriver
// has Wait pump its Driver one tick at a time until settlement, which lets
// callers that own an external event loop advance it from synchronous code.
//
// # Adapters
//
// Go, FromChan, Chan, Resolved and Rejected convert between Futures and plain
// Go values, functions, and channels at API boundaries.
package future
