package bindgen

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/woxQAQ/bindgen-host/internal/heap"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// ErrorChannel carries host exceptions to the guest.
//
// It is a single slot, not a queue: storing a new exception releases any
// earlier one the guest did not take. When the guest exports its own store
// the handle is forwarded there instead.
type ErrorChannel struct {
	heap    *heap.Table
	logger  *zap.Logger
	slot    heap.Handle
	forward func(ctx context.Context, h heap.Handle) error
}

// NewErrorChannel creates an empty channel over table.
func NewErrorChannel(table *heap.Table, logger *zap.Logger) *ErrorChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorChannel{heap: table, logger: logger}
}

// Forward routes stored exceptions to fn, typically the guest's
// __wbindgen_exn_store export.
func (c *ErrorChannel) Forward(fn func(ctx context.Context, h heap.Handle) error) {
	c.forward = fn
}

// Store records h as the last exception.
func (c *ErrorChannel) Store(ctx context.Context, h heap.Handle) error {
	if c.forward != nil {
		return c.forward(ctx, h)
	}
	if c.slot != abi.NoException {
		c.logger.Debug("Dropping uncollected exception",
			zap.Uint32("handle", c.slot),
			zap.String("value", webapi.DebugString(c.heap.Get(c.slot))),
		)
		if err := c.heap.Release(c.slot); err != nil {
			c.logger.Warn("Failed to release dropped exception", zap.Error(err))
		}
	}
	c.slot = h
	return nil
}

// Take returns the last exception and clears the slot. It returns
// abi.NoException when nothing is stored.
func (c *ErrorChannel) Take() heap.Handle {
	h := c.slot
	c.slot = abi.NoException
	return h
}

// Pending reports whether an exception is waiting to be taken.
func (c *ErrorChannel) Pending() bool {
	return c.slot != abi.NoException
}

// Capture converts err to the value a script catcher would see and stores it.
func (c *ErrorChannel) Capture(ctx context.Context, err error) error {
	return c.Store(ctx, c.heap.Alloc(thrownValue(err)))
}

// Raise builds the error for a guest-requested throw.
func (c *ErrorChannel) Raise(message string) *GuestError {
	return &GuestError{Message: message}
}

func thrownValue(err error) any {
	var guestErr *GuestError
	if errors.As(err, &guestErr) {
		return guestErr.thrown()
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return &webapi.Error{Name: webapi.TypeErrorName, Message: "The encoded data was not valid for encoding utf-8"}
	}
	return webapi.ThrownValue(err)
}
