package webapi

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

func TestJSONParse(t *testing.T) {
	v, err := JSONParse(`{"name":"wbg","list":[1,{"ok":true}],"none":null}`)
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, "wbg", obj["name"])
	assert.Nil(t, obj["none"])

	list := obj["list"].([]any)
	assert.Equal(t, 1.0, list[0])
	assert.Equal(t, Object{"ok": true}, list[1])

	_, err = JSONParse(`{"broken":`)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, SyntaxErrorName, e.Name)
}

func TestJSONStringify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		value any
		space any
		want  any
	}{
		{"string", "a<b>", nil, `"a<b>"`},
		{"number", 1.5, nil, `1.5`},
		{"nan", []any{math.NaN()}, nil, `[null]`},
		{"undefined", abi.Undefined, nil, abi.Undefined},
		{"function", Func(nil), nil, abi.Undefined},
		{"object keys sorted", Object{"b": 1.0, "a": "x", "skip": abi.Undefined}, nil, `{"a":"x","b":1}`},
		{"array holes", []any{abi.Undefined, true}, nil, `[null,true]`},
		{"indent", Object{"a": 1.0}, 2.0, "{\n  \"a\": 1\n}"},
		{"indent string", []any{1.0}, "\t", "[\n\t1\n]"},
		{"bytes", mustBytes(t, []any{7.0, 8.0}), nil, `{"0":7,"1":8}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JSONStringify(ctx, tt.value, nil, tt.space)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONStringifyReplacer(t *testing.T) {
	ctx := context.Background()
	value := Object{"keep": 1.0, "drop": 2.0}

	got, err := JSONStringify(ctx, value, []any{"keep"}, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"keep":1}`, got)

	double := Func(func(_ context.Context, args ...any) (any, error) {
		if f, ok := args[1].(float64); ok {
			return f * 2, nil
		}
		return args[1], nil
	})
	got, err = JSONStringify(ctx, value, double, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"drop":4,"keep":2}`, got)
}

func TestJSONStringifyCycle(t *testing.T) {
	obj := Object{}
	obj["self"] = obj

	_, err := JSONStringify(context.Background(), obj, nil, nil)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, TypeErrorName, e.Name)
}

func TestJSONStringifySharedIsNotCycle(t *testing.T) {
	shared := Object{"v": 1.0}
	got, err := JSONStringify(context.Background(), []any{shared, shared}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `[{"v":1},{"v":1}]`, got)
}

func mustBytes(t *testing.T, src []any) *Uint8Array {
	t.Helper()
	arr, err := NewUint8Array(src)
	require.NoError(t, err)
	return arr
}
