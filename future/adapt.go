package future

// Result is a settled outcome carried over channels.
type Result struct {
	Value any
	Err   error
}

// Resolved returns a Future already fulfilled with value.
func Resolved(value any) *Future {
	f := New()
	f.Resolve(value)
	return f
}

// Rejected returns a Future already rejected with err.
func Rejected(err error) *Future {
	f := New()
	f.Reject(err)
	return f
}

// Go runs fn in a new goroutine and settles the returned Future with its
// outcome. A panic in fn rejects the Future with ErrPanic.
func Go(fn func() (any, error)) *Future {
	f := New()
	go func() {
		value, err := call(fn)
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(value)
	}()
	return f
}

// FromChan settles the returned Future with the first Result received on ch.
// A channel closed without a value fulfills the Future with nil.
func FromChan(ch <-chan Result) *Future {
	f := New()
	go func() {
		res, ok := <-ch
		switch {
		case !ok:
			f.Resolve(nil)
		case res.Err != nil:
			f.Reject(res.Err)
		default:
			f.Resolve(res.Value)
		}
	}()
	return f
}

// Chan returns a buffered channel that receives the outcome once.
func (f *Future) Chan() <-chan Result {
	ch := make(chan Result, 1)
	f.Then(
		func(value any) (any, error) {
			ch <- Result{Value: value}
			close(ch)
			return value, nil
		},
		func(err error) (any, error) {
			ch <- Result{Err: err}
			close(ch)
			return nil, err
		},
	)
	return ch
}

// Try invokes fn and returns its Future. A panic or a nil Future from fn is
// converted into a rejected Future so callers always receive a Future.
func Try(fn func() *Future) (out *Future) {
	defer func() {
		if r := recover(); r != nil {
			out = Rejected(panicError(r))
		}
	}()
	out = fn()
	if out == nil {
		out = Rejected(ErrNilFuture)
	}
	return out
}
