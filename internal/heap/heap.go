// Package heap implements the handle table that lets a guest module refer to
// host values by small integers.
package heap

import (
	"errors"
	"fmt"

	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// Handle is a guest-visible reference to a host value.
type Handle = uint32

// DefaultCapacity bounds the number of slots a table may hold.
const DefaultCapacity = 1 << 20

// ErrExhausted is the panic value raised when the table cannot grow.
var ErrExhausted = errors.New("handle table exhausted")

// InvalidHandleError reports use of a handle that is not live.
type InvalidHandleError struct {
	Handle Handle
	Op     string
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("invalid handle %d (op=%s)", e.Handle, e.Op)
}

type slot struct {
	value any
	next  Handle
	free  bool
}

// Table is a slot array with an intrusive free list.
// It is not safe for concurrent use.
type Table struct {
	slots    []slot
	next     Handle
	capacity int
	live     int
}

// New creates a table with the sentinel slots in place.
// A capacity of zero or less selects DefaultCapacity.
func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity < abi.HeapStart {
		capacity = abi.HeapStart
	}

	slots := make([]slot, abi.HeapStart, abi.HeapStart+32)
	for i := range abi.ReservedSlots {
		slots[i].value = abi.Undefined
	}
	slots[abi.HandleUndefined].value = abi.Undefined
	slots[abi.HandleNull].value = nil
	slots[abi.HandleTrue].value = true
	slots[abi.HandleFalse].value = false

	return &Table{
		slots:    slots,
		next:     abi.HeapStart,
		capacity: capacity,
	}
}

// Alloc stores v and returns its handle.
// It panics with ErrExhausted when the table is full.
func (t *Table) Alloc(v any) Handle {
	if int(t.next) == len(t.slots) {
		if len(t.slots) >= t.capacity {
			panic(ErrExhausted)
		}
		t.slots = append(t.slots, slot{next: Handle(len(t.slots) + 1), free: true})
	}

	h := t.next
	s := &t.slots[h]
	t.next = s.next
	s.value = v
	s.next = 0
	s.free = false
	t.live++
	return h
}

// Get returns the value behind a live handle.
// Calling it with a free or unknown handle is a caller bug and panics.
func (t *Table) Get(h Handle) any {
	v, ok := t.Lookup(h)
	if !ok {
		panic(&InvalidHandleError{Handle: h, Op: "get"})
	}
	return v
}

// Lookup is Get without the panic.
func (t *Table) Lookup(h Handle) (any, bool) {
	if int(h) >= len(t.slots) {
		return nil, false
	}
	s := t.slots[h]
	if s.free {
		return nil, false
	}
	return s.value, true
}

// Release returns a handle to the free list. Sentinels are never released.
func (t *Table) Release(h Handle) error {
	if h < abi.HeapStart {
		return nil
	}
	if int(h) >= len(t.slots) || t.slots[h].free {
		return &InvalidHandleError{Handle: h, Op: "release"}
	}

	t.slots[h] = slot{next: t.next, free: true}
	t.next = h
	t.live--
	return nil
}

// Take returns the value and releases the handle.
func (t *Table) Take(h Handle) any {
	v := t.Get(h)
	if err := t.Release(h); err != nil {
		panic(err)
	}
	return v
}

// Clone allocates a second handle for the same value.
func (t *Table) Clone(h Handle) Handle {
	return t.Alloc(t.Get(h))
}

// Len reports the number of live, non-sentinel handles.
func (t *Table) Len() int {
	return t.live
}

// Cap reports the current slot count, sentinels included.
func (t *Table) Cap() int {
	return len(t.slots)
}

// Limit reports the slot count at which Alloc panics.
func (t *Table) Limit() int {
	return t.capacity
}
