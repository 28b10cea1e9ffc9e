package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo(t *testing.T) {
	v, err := Go(func() (any, error) { return "done", nil }).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	boom := errors.New("fail")
	_, err = Go(func() (any, error) { return nil, boom }).Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestGo_Panic(t *testing.T) {
	_, err := Go(func() (any, error) { panic("bad") }).Wait(context.Background())
	assert.ErrorIs(t, err, ErrPanic)
}

func TestFromChan(t *testing.T) {
	ch := make(chan Result, 1)
	ch <- Result{Value: 7}
	v, err := FromChan(ch).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	errCh := make(chan Result, 1)
	errCh <- Result{Err: errors.New("chan fail")}
	_, err = FromChan(errCh).Wait(context.Background())
	assert.EqualError(t, err, "chan fail")

	closed := make(chan Result)
	close(closed)
	v, err = FromChan(closed).Wait(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestChan(t *testing.T) {
	f := New()
	ch := f.Chan()
	f.Resolve("x")

	select {
	case res := <-ch:
		assert.Equal(t, "x", res.Value)
		assert.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("channel did not receive result")
	}
}

func TestTry(t *testing.T) {
	_, err := Try(func() *Future { panic("stage blew up") }).Wait(context.Background())
	assert.ErrorIs(t, err, ErrPanic)

	_, err = Try(func() *Future { return nil }).Wait(context.Background())
	assert.ErrorIs(t, err, ErrNilFuture)

	v, err := Try(func() *Future { return Resolved(3) }).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestDelay(t *testing.T) {
	start := time.Now()
	_, err := Delay(20 * time.Millisecond).Wait(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.Equal(t, StateFulfilled, Delay(0).State())
}

func TestRace(t *testing.T) {
	slow := Delay(time.Second).Then(func(any) (any, error) { return "slow", nil }, nil)
	fast := Resolved("fast")

	v, err := Race(slow, fast).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fast", v)
}

func TestTimeout(t *testing.T) {
	errTimeout := errors.New("timed out")

	_, err := Timeout(New(), 10*time.Millisecond, errTimeout).Wait(context.Background())
	assert.ErrorIs(t, err, errTimeout)

	v, err := Timeout(Resolved("in time"), time.Second, errTimeout).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "in time", v)

	f := New()
	assert.Same(t, f, Timeout(f, 0, errTimeout))
}
