package bindgen

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/bindgen-host/internal/webapi"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

var closureImports = []importSig{
	imp(abi.ClosureWrapperImport(abi.ShapeInvoke1), 3, true),
	imp(abi.ClosureWrapperImport(abi.ShapeReturn1), 3, true),
	imp("__wbindgen_cb_drop", 1, true),
	imp("__wbindgen_object_clone_ref", 1, true),
}

func wrapClosure(t *testing.T, b *Boundary, shape abi.Shape) (uint32, *Closure) {
	t.Helper()
	h := api.DecodeU32(invoke(t, b, abi.ClosureWrapperImport(shape), 7, 8, 3)[0])
	c, ok := b.Heap().Get(h).(*Closure)
	require.True(t, ok)
	return h, c
}

func TestClosureCallThenDrop(t *testing.T) {
	ctx := context.Background()
	b := startGuest(t, fixture{imports: closureImports})
	_, c := wrapClosure(t, b, abi.ShapeInvoke1)
	assert.Equal(t, abi.ShapeInvoke1, c.Shape())
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics().ClosuresLive))

	ret, err := c.Call(ctx, "x")
	require.NoError(t, err)
	assert.True(t, abi.IsUndefined(ret))
	assert.Equal(t, uint32(1), global(t, b, "invocations"))
	assert.Equal(t, "x", b.Heap().Get(global(t, b, "arg0")))
	assert.Equal(t, 1, c.RefCount())

	require.NoError(t, c.Drop(ctx))
	assert.Equal(t, uint32(1), global(t, b, "destroys"))
	assert.Equal(t, uint32(7), global(t, b, "destroyed_a"))
	assert.False(t, c.Live())
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Metrics().ClosuresLive))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics().ClosuresDestroyed))

	_, err = c.Call(ctx)
	assert.ErrorIs(t, err, ErrClosureDropped)
	assert.ErrorIs(t, c.Drop(ctx), ErrClosureDropped)
	assert.Equal(t, uint32(1), global(t, b, "destroys"))
}

func TestClosureRetainKeepsItCallable(t *testing.T) {
	ctx := context.Background()
	b := startGuest(t, fixture{imports: closureImports})
	_, c := wrapClosure(t, b, abi.ShapeInvoke1)

	c.Retain()
	require.NoError(t, c.Drop(ctx))
	assert.Zero(t, global(t, b, "destroys"))

	_, err := c.Call(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), global(t, b, "invocations"))

	require.NoError(t, c.Drop(ctx))
	assert.Equal(t, uint32(1), global(t, b, "destroys"))
}

func TestClosureReturnTakesResultHandle(t *testing.T) {
	ctx := context.Background()
	b := startGuest(t, fixture{imports: closureImports})
	_, c := wrapClosure(t, b, abi.ShapeReturn1)

	live := b.Heap().Len()
	ret, err := c.Call(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", ret)
	assert.Equal(t, live, b.Heap().Len())
}

func TestGuestDropSkipsDestructor(t *testing.T) {
	ctx := context.Background()
	b := startGuest(t, fixture{imports: closureImports})
	h, c := wrapClosure(t, b, abi.ShapeInvoke1)

	res := invoke(t, b, "__wbindgen_cb_drop", h)
	assert.Equal(t, uint32(1), api.DecodeU32(res[0]))
	assert.Zero(t, global(t, b, "destroys"))
	assert.False(t, c.Live())
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Metrics().ClosuresLive))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Metrics().ClosuresDestroyed))

	_, err := c.Call(ctx)
	assert.ErrorIs(t, err, ErrClosureDropped)
}

func TestGuestDropWhileHostHoldsReference(t *testing.T) {
	ctx := context.Background()
	b := startGuest(t, fixture{imports: closureImports})
	h, c := wrapClosure(t, b, abi.ShapeInvoke1)
	c.Retain()

	res := invoke(t, b, "__wbindgen_cb_drop", h)
	assert.Zero(t, api.DecodeU32(res[0]))
	assert.True(t, c.Live())

	require.NoError(t, c.Drop(ctx))
	assert.Equal(t, uint32(1), global(t, b, "destroys"))
}

func TestClosureReentryIsBusy(t *testing.T) {
	ctx := context.Background()
	b := startGuest(t, fixture{imports: closureImports, reenter: true})
	_, c := wrapClosure(t, b, abi.ShapeInvoke1)

	// The adapter calls its argument, which is the closure itself.
	_, err := c.Call(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), global(t, b, "invocations"))

	require.True(t, b.Errors().Pending())
	exc, ok := b.Heap().Get(b.Errors().Take()).(*webapi.Error)
	require.True(t, ok)
	assert.Equal(t, ErrClosureBusy.Error(), exc.Message)

	// The closure is usable again once the outer call returns.
	assert.Equal(t, 1, c.RefCount())
	_, err = c.Call(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), global(t, b, "invocations"))
}

func TestDropDuringCallDefersDestructor(t *testing.T) {
	ctx := context.Background()
	b := startGuest(t, fixture{dropSelf: true})
	c := b.newClosure(7, 8, 3, abi.ShapeInvoke1, abi.AdapterExport(abi.ShapeInvoke1))

	// The adapter drops its last reference while running.
	_, err := c.Call(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), global(t, b, "invocations"))
	assert.Equal(t, uint32(1), global(t, b, "destroys"))
	assert.False(t, c.Live())
}

func TestBorrowedClosureIsRevoked(t *testing.T) {
	ctx := context.Background()
	b := startGuest(t, fixture{})

	c := b.borrowedClosure(7, 8, abi.ShapeInvoke2, abi.AdapterExport(abi.ShapeInvoke2))
	_, err := c.Call(ctx, 1.0, 2.0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), global(t, b, "invocations"))

	c.revoke()
	_, err = c.Call(ctx)
	assert.ErrorIs(t, err, ErrClosureDropped)
	assert.Zero(t, global(t, b, "destroys"))
}
