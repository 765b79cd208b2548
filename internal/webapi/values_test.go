package webapi

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

func TestTypeOf(t *testing.T) {
	assert.Equal(t, "undefined", TypeOf(abi.Undefined))
	assert.Equal(t, "object", TypeOf(nil))
	assert.Equal(t, "boolean", TypeOf(true))
	assert.Equal(t, "string", TypeOf(""))
	assert.Equal(t, "number", TypeOf(1.0))
	assert.Equal(t, "function", TypeOf(Func(nil)))
	assert.Equal(t, "object", TypeOf(Object{}))

	assert.False(t, IsObject(nil))
	assert.True(t, IsObject([]any{}))
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{abi.Undefined, nil, false, "", 0.0, math.NaN()} {
		assert.False(t, Truthy(v), "%v", v)
	}
	for _, v := range []any{true, "0", 1.0, Object{}, []any{}} {
		assert.True(t, Truthy(v), "%v", v)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		0:                "0",
		1:                "1",
		-2.5:             "-2.5",
		1e21:             "1e+21",
		1.5e-7:           "1.5e-7",
		123456789012:     "123456789012",
		math.Inf(1):      "Infinity",
		math.Inf(-1):     "-Infinity",
		0.1 + 0.2:        "0.30000000000000004",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatNumber(in))
	}
	assert.Equal(t, "NaN", FormatNumber(math.NaN()))
}

func TestToString(t *testing.T) {
	assert.Equal(t, "undefined", ToString(abi.Undefined))
	assert.Equal(t, "null", ToString(nil))
	assert.Equal(t, "3", ToString(3.0))
	assert.Equal(t, "[object Object]", ToString(Object{}))
	assert.Equal(t, "TypeError: bad", ToString(NewError(TypeErrorName, "bad")))
}

func TestDebugString(t *testing.T) {
	assert.Equal(t, `"hi"`, DebugString("hi"))
	assert.Equal(t, `[1, "a", null]`, DebugString([]any{1.0, "a", nil}))
	assert.Equal(t, `Object({"a":1})`, DebugString(Object{"a": 1.0}))
	assert.Equal(t, "Function", DebugString(Func(nil)))
	assert.Equal(t, "Uint8Array", DebugString(NewUint8ArrayWithLength(1)))
	assert.Contains(t, DebugString(NewError(ErrorName, "boom")), "Error: boom\n")
}

func TestGet(t *testing.T) {
	obj := Object{"a": 1.0}
	v, err := Get(obj, "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = Get(obj, "missing")
	require.NoError(t, err)
	assert.Equal(t, abi.Undefined, v)

	arr := []any{"x", "y"}
	v, _ = Get(arr, 1.0)
	assert.Equal(t, "y", v)
	v, _ = Get(arr, "length")
	assert.Equal(t, 2.0, v)

	v, _ = Get(NewError(RangeErrorName, "r"), "name")
	assert.Equal(t, RangeErrorName, v)

	_, err = Get("str", "length")
	assert.Error(t, err)
}

type receiverFunc struct{}

func (receiverFunc) Call(ctx context.Context, args ...any) (any, error) {
	return receiverFunc{}.CallWith(ctx, abi.Undefined, args...)
}

func (receiverFunc) CallWith(_ context.Context, this any, _ ...any) (any, error) {
	return this, nil
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()

	got, err := Invoke(ctx, receiverFunc{}, "me")
	require.NoError(t, err)
	assert.Equal(t, "me", got)

	got, err = Invoke(ctx, Func(func(_ context.Context, args ...any) (any, error) {
		return Arg(args, 0), nil
	}), "ignored", 7.0)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)

	_, err = Invoke(ctx, 3.0, nil)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, TypeErrorName, e.Name)
}

func TestThrownValue(t *testing.T) {
	assert.Equal(t, "payload", ThrownValue(Throw("payload")))

	obj := NewError(TypeErrorName, "x")
	assert.Same(t, obj, ThrownValue(Throw(obj)))

	wrapped := ThrownValue(assert.AnError)
	e, ok := wrapped.(*Error)
	require.True(t, ok)
	assert.Equal(t, assert.AnError.Error(), e.Message)
}
