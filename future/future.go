package future

import (
	"context"
	"runtime"
	"sync"
)

// State represents the settlement state of a Future.
type State int32

const (
	// StatePending means the Future has not settled yet.
	StatePending State = iota
	// StateFulfilled means the Future settled with a value.
	StateFulfilled
	// StateRejected means the Future settled with an error.
	StateRejected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFulfilled:
		return "fulfilled"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Driver advances whatever produces settlement (for example an external
// event loop) by one tick. Wait invokes it repeatedly until settlement.
type Driver func()

// OnFulfilled handles a fulfilled value. Returning a *Future adopts it.
type OnFulfilled func(value any) (any, error)

// OnRejected handles a rejection. Returning a nil error recovers.
type OnRejected func(err error) (any, error)

// Future is a settle-once asynchronous value.
//
// Contract:
// - Concurrency: safe for concurrent use; settlement is atomic.
// - Settlement: the first Resolve or Reject wins; later calls are no-ops.
// - Ordering: handlers fire in registration order, each exactly once.
type Future struct {
	mu       sync.Mutex
	state    State
	value    any
	err      error
	handlers []handler
	done     chan struct{}
	driver   Driver
}

type handler struct {
	onFulfilled OnFulfilled
	onRejected  OnRejected
	next        *Future
}

// New creates a pending Future.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// NewWithDriver creates a pending Future whose Wait pumps driver until
// settlement. Futures derived through Then inherit the driver.
func NewWithDriver(driver Driver) *Future {
	f := New()
	f.driver = driver
	return f
}

// Resolve fulfills the Future with value.
// Returns false if the Future was already settled.
func (f *Future) Resolve(value any) bool {
	return f.settle(StateFulfilled, value, nil)
}

// Reject rejects the Future with err. A nil err is replaced with ErrNilReason.
// Returns false if the Future was already settled.
func (f *Future) Reject(err error) bool {
	if err == nil {
		err = ErrNilReason
	}
	return f.settle(StateRejected, nil, err)
}

func (f *Future) settle(state State, value any, err error) bool {
	f.mu.Lock()
	if f.state != StatePending {
		f.mu.Unlock()
		return false
	}
	f.state = state
	f.value = value
	f.err = err
	handlers := f.handlers
	f.handlers = nil
	close(f.done)
	f.mu.Unlock()

	for _, h := range handlers {
		h.fire(state, value, err)
	}
	return true
}

// Then registers handlers and returns a Future for their outcome.
// A nil handler passes the corresponding outcome through unchanged.
func (f *Future) Then(onFulfilled OnFulfilled, onRejected OnRejected) *Future {
	h := handler{
		onFulfilled: onFulfilled,
		onRejected:  onRejected,
		next:        NewWithDriver(f.driver),
	}

	f.mu.Lock()
	if f.state == StatePending {
		f.handlers = append(f.handlers, h)
		f.mu.Unlock()
		return h.next
	}
	state, value, err := f.state, f.value, f.err
	f.mu.Unlock()

	h.fire(state, value, err)
	return h.next
}

// Catch registers a rejection handler. Equivalent to Then(nil, onRejected).
func (f *Future) Catch(onRejected OnRejected) *Future {
	return f.Then(nil, onRejected)
}

// Finally runs fn on settlement and passes the outcome through unchanged.
func (f *Future) Finally(fn func()) *Future {
	return f.Then(
		func(value any) (any, error) {
			fn()
			return value, nil
		},
		func(err error) (any, error) {
			fn()
			return nil, err
		},
	)
}

// Pipe settles target with this Future's outcome once it is known.
func (f *Future) Pipe(target *Future) {
	f.Then(
		func(value any) (any, error) {
			target.Resolve(value)
			return value, nil
		},
		func(err error) (any, error) {
			target.Reject(err)
			return nil, err
		},
	)
}

// Wait blocks until the Future settles or ctx is done.
// If the Future has a Driver, Wait pumps it one tick at a time until the
// Future settles, checking ctx between ticks.
// A rejection is returned as the error.
func (f *Future) Wait(ctx context.Context) (any, error) {
	if f.driver != nil {
		if err := f.pump(ctx); err != nil {
			return nil, err
		}
	}

	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

func (f *Future) pump(ctx context.Context) error {
	for {
		select {
		case <-f.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		f.driver()
		runtime.Gosched()
	}
}

// State returns the current state.
func (f *Future) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done returns a channel closed when the Future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Outcome returns the settled outcome without blocking.
// The bool is false while the Future is pending.
func (f *Future) Outcome() (Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StatePending {
		return Result{}, false
	}
	return Result{Value: f.value, Err: f.err}, true
}

func (h handler) fire(state State, value any, err error) {
	var (
		out    any
		outErr error
	)

	switch state {
	case StateFulfilled:
		if h.onFulfilled == nil {
			h.next.Resolve(value)
			return
		}
		out, outErr = call(func() (any, error) { return h.onFulfilled(value) })
	case StateRejected:
		if h.onRejected == nil {
			h.next.Reject(err)
			return
		}
		out, outErr = call(func() (any, error) { return h.onRejected(err) })
	}

	if outErr != nil {
		h.next.Reject(outErr)
		return
	}
	if inner, ok := out.(*Future); ok {
		if inner == nil {
			h.next.Reject(ErrNilFuture)
			return
		}
		inner.Pipe(h.next)
		return
	}
	h.next.Resolve(out)
}

func call(fn func() (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = panicError(r)
		}
	}()
	return fn()
}
