package future

import "time"

// Delay returns a Future fulfilled with nil after d.
// A non-positive d yields an already-fulfilled Future.
func Delay(d time.Duration) *Future {
	f := New()
	if d <= 0 {
		f.Resolve(nil)
		return f
	}
	time.AfterFunc(d, func() { f.Resolve(nil) })
	return f
}

// Race returns a Future settled by whichever input settles first.
func Race(futures ...*Future) *Future {
	out := New()
	for _, f := range futures {
		if f != nil {
			f.Pipe(out)
		}
	}
	return out
}

// Timeout returns a Future that mirrors f, or rejects with err if f has not
// settled within d. A non-positive d returns f unchanged.
func Timeout(f *Future, d time.Duration, err error) *Future {
	if d <= 0 {
		return f
	}
	out := NewWithDriver(f.driver)
	timer := time.AfterFunc(d, func() { out.Reject(err) })
	f.Then(
		func(value any) (any, error) {
			timer.Stop()
			out.Resolve(value)
			return value, nil
		},
		func(e error) (any, error) {
			timer.Stop()
			out.Reject(e)
			return nil, e
		},
	)
	return out
}
