package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/cachepipe/future"
)

func recordingMiddleware(name string, order *[]string) Middleware {
	return MiddlewareFunc(func(ctx context.Context, cc *Context, next Handler) *future.Future {
		*order = append(*order, name+">")
		return next(ctx, cc).Finally(func() {
			*order = append(*order, "<"+name)
		})
	})
}

func TestPipeline_Order(t *testing.T) {
	var order []string
	terminal := func(_ context.Context, cc *Context) *future.Future {
		order = append(order, "terminal")
		return future.Resolved(cc.Key)
	}

	p := New(terminal,
		recordingMiddleware("a", &order),
		nil,
		recordingMiddleware("b", &order),
	)
	assert.Equal(t, 2, p.Len())

	v, err := p.Handle(context.Background(), &Context{Key: "k"}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k", v)
	assert.Equal(t, []string{"a>", "b>", "terminal", "<b", "<a"}, order)
}

func TestPipeline_ShortCircuit(t *testing.T) {
	called := false
	terminal := func(context.Context, *Context) *future.Future {
		called = true
		return future.Resolved("fetched")
	}
	hit := MiddlewareFunc(func(context.Context, *Context, Handler) *future.Future {
		return future.Resolved("cached")
	})

	v, err := New(terminal, hit).Handle(context.Background(), &Context{}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", v)
	assert.False(t, called)
}

func TestPipeline_PanicBecomesRejection(t *testing.T) {
	boom := MiddlewareFunc(func(context.Context, *Context, Handler) *future.Future {
		panic("boom")
	})
	p := New(func(context.Context, *Context) *future.Future { return future.Resolved(1) }, boom)

	var f *future.Future
	require.NotPanics(t, func() { f = p.Handle(context.Background(), &Context{}) })
	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, future.ErrPanic)
}

func TestPipeline_NilFutureBecomesRejection(t *testing.T) {
	p := New(func(context.Context, *Context) *future.Future { return nil })
	_, err := p.Handle(context.Background(), &Context{}).Wait(context.Background())
	assert.ErrorIs(t, err, future.ErrNilFuture)
}

func TestPipeline_NilTerminal(t *testing.T) {
	_, err := New(nil).Handle(context.Background(), &Context{}).Wait(context.Background())
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestContext_CloneAndElapsed(t *testing.T) {
	start := time.Unix(1000, 0)
	cc := &Context{Key: "k", StartTime: start}
	cp := cc.Clone()
	cp.Key = "other"
	assert.Equal(t, "k", cc.Key)
	assert.Equal(t, 2*time.Second, cc.Elapsed(start.Add(2*time.Second)))
	assert.Zero(t, (&Context{}).Elapsed(start))
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		src     Source
		want    any
		wantErr error
	}{
		{
			name: "func value",
			src:  SourceFunc(func(context.Context) (any, error) { return "v", nil }),
			want: "v",
		},
		{
			name:    "func error",
			src:     SourceFunc(func(context.Context) (any, error) { return nil, errBoom }),
			wantErr: errBoom,
		},
		{
			name: "future",
			src:  FutureSourceFunc(func(context.Context) *future.Future { return future.Resolved(7) }),
			want: 7,
		},
		{
			name: "chan",
			src: ChanSourceFunc(func(context.Context) <-chan future.Result {
				ch := make(chan future.Result, 1)
				ch <- future.Result{Value: "c"}
				return ch
			}),
			want: "c",
		},
		{
			name: "constant",
			src:  Value(3.5),
			want: 3.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.src.Fetch(ctx).Wait(ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestFutureSourceFunc_Panic(t *testing.T) {
	src := FutureSourceFunc(func(context.Context) *future.Future { panic("bad source") })
	_, err := src.Fetch(context.Background()).Wait(context.Background())
	assert.ErrorIs(t, err, future.ErrPanic)
}
