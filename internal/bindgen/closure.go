package bindgen

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/bindgen-host/internal/webapi"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// ClosureWrapper declares a toolchain-generated closure wrapper import.
// Such wrappers ignore their third argument and always use Dtor.
type ClosureWrapper struct {
	Import  string    `yaml:"import"`
	Dtor    uint32    `yaml:"dtor"`
	Adapter string    `yaml:"adapter"`
	Shape   abi.Shape `yaml:"-"`
}

// Closure is a guest callback held by the host.
//
// The guest identifies a boxed closure by two words, a and aux. While the
// closure runs, a is zero so a nested call or a guest drop can tell it is
// in use. The guest destructor runs once, when cnt reaches zero on the host
// side.
type Closure struct {
	b       *Boundary
	a       uint32
	aux     uint32
	cnt     int
	dtor    uint32
	shape   abi.Shape
	adapter string

	borrowed  bool
	destroyed bool
}

func (b *Boundary) newClosure(a, aux, dtor uint32, shape abi.Shape, adapter string) *Closure {
	b.metrics.ClosuresCreated.Inc()
	b.metrics.ClosuresLive.Inc()
	return &Closure{b: b, a: a, aux: aux, cnt: 1, dtor: dtor, shape: shape, adapter: adapter}
}

// borrowedClosure wraps a stack closure the guest lends for the duration of
// one import. It has no destructor and is revoked when the import returns.
func (b *Boundary) borrowedClosure(a, aux uint32, shape abi.Shape, adapter string) *Closure {
	return &Closure{b: b, a: a, aux: aux, cnt: 1, shape: shape, adapter: adapter, borrowed: true}
}

// Shape returns the adapter calling convention.
func (c *Closure) Shape() abi.Shape {
	return c.shape
}

// RefCount returns the current reference count.
func (c *Closure) RefCount() int {
	return c.cnt
}

// Live reports whether the closure can still be called.
func (c *Closure) Live() bool {
	return c.cnt > 0
}

// Name implements the diagnostic name lookup.
func (c *Closure) Name() string {
	return c.adapter
}

// Call invokes the guest closure. Arguments beyond the adapter arity are
// ignored and missing ones are undefined.
func (c *Closure) Call(ctx context.Context, args ...any) (any, error) {
	if c.cnt == 0 {
		return nil, ErrClosureDropped
	}
	if c.a == 0 {
		return nil, ErrClosureBusy
	}

	c.cnt++
	a := c.a
	c.a = 0

	ret, err := c.invoke(ctx, a, args)

	c.cnt--
	if c.cnt == 0 {
		if derr := c.destroy(ctx, a); derr != nil && err == nil {
			err = derr
		}
	} else {
		c.a = a
	}
	return ret, err
}

func (c *Closure) invoke(ctx context.Context, a uint32, args []any) (any, error) {
	params := make([]uint64, 0, 2+c.shape.Arity())
	params = append(params, api.EncodeU32(a), api.EncodeU32(c.aux))
	for i := 0; i < c.shape.Arity(); i++ {
		params = append(params, api.EncodeU32(c.b.heap.Alloc(webapi.Arg(args, i))))
	}

	results, err := c.b.guest.call(ctx, c.adapter, params...)
	if err != nil {
		return nil, err
	}
	if c.shape.Returns() && len(results) > 0 {
		return c.b.heap.Take(api.DecodeU32(results[0])), nil
	}
	return abi.Undefined, nil
}

// Retain adds a reference, as cloning the closure value does.
func (c *Closure) Retain() *Closure {
	if c.cnt > 0 {
		c.cnt++
	}
	return c
}

// Drop releases a host reference and runs the destructor at zero.
func (c *Closure) Drop(ctx context.Context) error {
	if c.cnt == 0 {
		return ErrClosureDropped
	}
	c.cnt--
	if c.cnt > 0 {
		return nil
	}
	a := c.a
	c.a = 0
	return c.destroy(ctx, a)
}

// guestDrop handles __wbindgen_cb_drop. The guest frees the closure itself
// when this returns true, so the host destructor is not run.
func (c *Closure) guestDrop() bool {
	if c.cnt == 0 {
		return false
	}
	c.cnt--
	if c.cnt > 0 {
		return false
	}
	c.a = 0
	c.release(false)
	return true
}

// revoke invalidates a borrowed closure.
func (c *Closure) revoke() {
	c.a, c.aux, c.cnt = 0, 0, 0
}

func (c *Closure) destroy(ctx context.Context, a uint32) error {
	if c.borrowed || c.destroyed {
		return nil
	}
	c.release(true)
	if err := c.b.guest.destroyClosure(ctx, c.dtor, a, c.aux); err != nil {
		c.b.logger.Warn("Closure destructor failed",
			zap.Uint32("dtor", c.dtor),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (c *Closure) release(byHost bool) {
	if c.borrowed || c.destroyed {
		return
	}
	c.destroyed = true
	c.b.metrics.ClosuresLive.Dec()
	if byHost {
		c.b.metrics.ClosuresDestroyed.Inc()
	}
}

// ConstructorName names the object for diagnostics.
func (c *Closure) ConstructorName() string {
	return "Function"
}
