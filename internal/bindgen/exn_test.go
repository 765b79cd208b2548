package bindgen

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/bindgen-host/internal/heap"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

func TestErrorChannelKeepsLastException(t *testing.T) {
	ctx := context.Background()
	table := heap.New(0)
	ch := NewErrorChannel(table, zaptest.NewLogger(t))
	assert.False(t, ch.Pending())
	assert.Equal(t, abi.NoException, ch.Take())

	first := table.Alloc("first")
	second := table.Alloc("second")
	require.NoError(t, ch.Store(ctx, first))
	require.NoError(t, ch.Store(ctx, second))

	_, live := table.Lookup(first)
	assert.False(t, live, "overwritten exception is released")

	assert.True(t, ch.Pending())
	got := ch.Take()
	assert.Equal(t, second, got)
	assert.Equal(t, "second", table.Get(got))
	assert.False(t, ch.Pending())
	assert.Equal(t, abi.NoException, ch.Take())
}

func TestErrorChannelForward(t *testing.T) {
	ctx := context.Background()
	table := heap.New(0)
	ch := NewErrorChannel(table, nil)

	var forwarded []heap.Handle
	ch.Forward(func(_ context.Context, h heap.Handle) error {
		forwarded = append(forwarded, h)
		return nil
	})

	require.NoError(t, ch.Capture(ctx, errors.New("boom")))
	require.Len(t, forwarded, 1)
	assert.False(t, ch.Pending())

	failing := errors.New("guest store trapped")
	ch.Forward(func(context.Context, heap.Handle) error { return failing })
	assert.ErrorIs(t, ch.Capture(ctx, errors.New("again")), failing)
}

func TestCaptureThrownValues(t *testing.T) {
	ctx := context.Background()
	payload := webapi.Object{"code": 7.0}

	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, v any)
	}{
		{
			name: "plain error",
			err:  errors.New("boom"),
			check: func(t *testing.T, v any) {
				e := v.(*webapi.Error)
				assert.Equal(t, webapi.ErrorName, e.Name)
				assert.Equal(t, "boom", e.Message)
			},
		},
		{
			name: "host error object",
			err:  fmt.Errorf("wrapped: %w", webapi.NewError(webapi.SyntaxErrorName, "bad selector")),
			check: func(t *testing.T, v any) {
				assert.Equal(t, webapi.SyntaxErrorName, v.(*webapi.Error).Name)
			},
		},
		{
			name: "thrown value",
			err:  webapi.Throw(payload),
			check: func(t *testing.T, v any) {
				assert.Equal(t, payload, v)
			},
		},
		{
			name: "guest rethrow",
			err:  &GuestError{Value: "raw"},
			check: func(t *testing.T, v any) {
				assert.Equal(t, "raw", v)
			},
		},
		{
			name: "guest throw",
			err:  &GuestError{Message: "from guest"},
			check: func(t *testing.T, v any) {
				assert.Equal(t, "from guest", v.(*webapi.Error).Message)
			},
		},
		{
			name: "decode error",
			err:  &DecodeError{Ptr: 8, Len: 2, Offset: 1},
			check: func(t *testing.T, v any) {
				assert.Equal(t, webapi.TypeErrorName, v.(*webapi.Error).Name)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := heap.New(0)
			ch := NewErrorChannel(table, nil)
			require.NoError(t, ch.Capture(ctx, tt.err))
			tt.check(t, table.Get(ch.Take()))
		})
	}
}

func TestRaise(t *testing.T) {
	ch := NewErrorChannel(heap.New(0), nil)
	err := ch.Raise("unreachable state")
	assert.Equal(t, "unreachable state", err.Message)
	assert.Contains(t, err.Error(), "unreachable state")
}

func TestStartErrorUnwraps(t *testing.T) {
	cause := errors.New("trap")
	err := error(&StartError{Err: cause})
	assert.ErrorIs(t, err, cause)
}
