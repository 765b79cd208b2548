package bindgen

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/woxQAQ/bindgen-host/internal/heap"
	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
)

// Allocator is the guest's buffer contract. Every method calls into the
// guest and may grow its memory.
type Allocator interface {
	Malloc(ctx context.Context, size, align uint32) (uint32, error)
	Realloc(ctx context.Context, ptr, oldSize, newSize, align uint32) (uint32, error)
	Free(ctx context.Context, ptr, size, align uint32) error
}

// Transcoder copies strings and bytes across the boundary.
//
// Buffers passed to the guest are allocated with the guest allocator and
// owned by the guest from then on. The transcoder never holds a memory view
// across an allocator call.
type Transcoder struct {
	mem   *wasm.Memory
	alloc Allocator
	heap  *heap.Table
}

// NewTranscoder creates a transcoder.
func NewTranscoder(mem *wasm.Memory, alloc Allocator, table *heap.Table) *Transcoder {
	return &Transcoder{mem: mem, alloc: alloc, heap: table}
}

// PassString copies s into a fresh guest buffer and returns its pointer and
// exact byte length.
//
// The buffer is first sized for one byte per character and filled while the
// input stays ASCII. The remainder is re-encoded and the buffer reallocated
// to fit. Invalid UTF-8 in s is replaced with U+FFFD.
func (t *Transcoder) PassString(ctx context.Context, s string) (uint32, uint32, error) {
	size := uint32(utf8.RuneCountInString(s))
	ptr, err := t.alloc.Malloc(ctx, size, 1)
	if err != nil {
		return 0, 0, err
	}

	mem := t.mem.Bytes()
	if uint64(ptr)+uint64(size) > uint64(len(mem)) {
		return 0, 0, &wasm.MemoryAccessError{Operation: "pass_string", Address: ptr, Length: size}
	}

	offset := uint32(0)
	for ; offset < size; offset++ {
		c := s[offset]
		if c >= utf8.RuneSelf {
			break
		}
		mem[ptr+offset] = c
	}

	if int(offset) != len(s) {
		encoded := strings.ToValidUTF8(s[offset:], string(utf8.RuneError))
		newSize := offset + uint32(len(encoded))
		ptr, err = t.alloc.Realloc(ctx, ptr, size, newSize, 1)
		if err != nil {
			return 0, 0, err
		}
		if err := t.mem.WriteBytes(ptr+offset, []byte(encoded)); err != nil {
			return 0, 0, err
		}
		offset = newSize
	}

	return ptr, offset, nil
}

// PassBytes copies b into a fresh guest buffer.
func (t *Transcoder) PassBytes(ctx context.Context, b []byte) (uint32, uint32, error) {
	ptr, err := t.alloc.Malloc(ctx, uint32(len(b)), 1)
	if err != nil {
		return 0, 0, err
	}
	if err := t.mem.WriteBytes(ptr, b); err != nil {
		return 0, 0, err
	}
	return ptr, uint32(len(b)), nil
}

// String decodes length bytes at ptr. Decoding is strict: invalid UTF-8
// yields *DecodeError.
func (t *Transcoder) String(ptr, length uint32) (string, error) {
	b, err := t.mem.ReadBytes(ptr, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &DecodeError{Ptr: ptr, Len: length, Offset: invalidOffset(b)}
	}
	return string(b), nil
}

// CachedString decodes a string argument that may be interned: a zero
// pointer means the string is the heap object at handle length.
func (t *Transcoder) CachedString(ptr, length uint32) (string, error) {
	if ptr == 0 {
		v := t.heap.Get(length)
		if s, ok := v.(string); ok {
			return s, nil
		}
		return webapi.ToString(v), nil
	}
	return t.String(ptr, length)
}

// Bytes copies length bytes at ptr.
func (t *Transcoder) Bytes(ptr, length uint32) ([]byte, error) {
	return t.mem.ReadBytes(ptr, length)
}

// WriteSlice stores a (ptr, len) pair in the two words at out.
func (t *Transcoder) WriteSlice(out, ptr, length uint32) error {
	if out%4 != 0 {
		return &wasm.MemoryAccessError{Operation: "write_slice", Address: out, Length: 8}
	}
	words := t.mem.Words()
	if !words.Set(out/4, ptr) || !words.Set(out/4+1, length) {
		return &wasm.MemoryAccessError{Operation: "write_slice", Address: out, Length: 8}
	}
	return nil
}

// WriteString passes s to the guest and stores the result at out.
func (t *Transcoder) WriteString(ctx context.Context, out uint32, s string) error {
	ptr, length, err := t.PassString(ctx, s)
	if err != nil {
		return err
	}
	return t.WriteSlice(out, ptr, length)
}

// WriteOptionalString is WriteString for an optional value. Absent strings
// are written as (0, 0).
func (t *Transcoder) WriteOptionalString(ctx context.Context, out uint32, s string, ok bool) error {
	if !ok {
		return t.WriteSlice(out, 0, 0)
	}
	return t.WriteString(ctx, out, s)
}

// WriteOptionalNumber stores an optional f64: the presence flag as an i32 at
// out and the value at out+8.
func (t *Transcoder) WriteOptionalNumber(out uint32, v float64, ok bool) error {
	if !ok {
		v = 0
	}
	if err := t.mem.WriteFloat64(out+8, v); err != nil {
		return err
	}
	present := uint32(0)
	if ok {
		present = 1
	}
	return t.mem.WriteUint32(out, present)
}

func invalidOffset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}
