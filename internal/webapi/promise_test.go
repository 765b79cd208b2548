package webapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func capture(dst *any) Func {
	return func(_ context.Context, args ...any) (any, error) {
		*dst = Arg(args, 0)
		return nil, nil
	}
}

func TestPromiseResolveThen(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t), 0)
	p, resolve, _ := NewPromise(loop)

	var got any
	derived := p.Then(Func(func(_ context.Context, args ...any) (any, error) {
		got = args[0]
		return args[0].(float64) * 2, nil
	}), nil)

	resolve(21.0)
	resolve(99.0) // ignored
	assert.Nil(t, got, "reactions run as microtasks, not synchronously")

	loop.DrainMicrotasks(context.Background())
	assert.Equal(t, 21.0, got)
	assert.Equal(t, Fulfilled, derived.State())
	assert.Equal(t, 42.0, derived.Result())
}

func TestPromiseRejectPassesThrough(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t), 0)
	p, _, reject := NewPromise(loop)

	var caught any
	p.Then(nil, nil).Then(nil, capture(&caught))
	reject("bad")

	loop.DrainMicrotasks(context.Background())
	assert.Equal(t, "bad", caught)
}

func TestPromiseHandlerErrorRejects(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t), 0)
	p := ResolvedPromise(loop, 1.0)

	derived := p.Then(Func(func(context.Context, ...any) (any, error) {
		return nil, errors.New("handler failed")
	}), nil)

	loop.DrainMicrotasks(context.Background())
	require.Equal(t, Rejected, derived.State())
	errObj, ok := derived.Result().(*Error)
	require.True(t, ok)
	assert.Equal(t, "handler failed", errObj.Message)
}

func TestPromiseAdoptsPromise(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t), 0)
	inner, resolveInner, _ := NewPromise(loop)
	outer, resolveOuter, _ := NewPromise(loop)

	resolveOuter(inner)
	loop.DrainMicrotasks(context.Background())
	assert.Equal(t, Pending, outer.State())

	resolveInner("done")
	loop.DrainMicrotasks(context.Background())
	assert.Equal(t, Fulfilled, outer.State())
	assert.Equal(t, "done", outer.Result())
}

func TestPromiseSelfResolutionRejects(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t), 0)
	p, resolve, _ := NewPromise(loop)
	resolve(p)

	require.Equal(t, Rejected, p.State())
	assert.Equal(t, TypeErrorName, p.Result().(*Error).Name)
}

func TestRunPromiseExecutor(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t), 0)
	ctx := context.Background()

	p := RunPromise(ctx, loop, Func(func(ctx context.Context, args ...any) (any, error) {
		return args[0].(Callable).Call(ctx, "value")
	}))
	assert.Equal(t, Fulfilled, p.State())
	assert.Equal(t, "value", p.Result())

	thrown := RunPromise(ctx, loop, Func(func(context.Context, ...any) (any, error) {
		return nil, Throw("thrown")
	}))
	assert.Equal(t, Rejected, thrown.State())
	assert.Equal(t, "thrown", thrown.Result())
}

func TestResolvedPromiseReturnsSamePromise(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t), 0)
	p, _, _ := NewPromise(loop)
	assert.Same(t, p, ResolvedPromise(loop, p))
}
