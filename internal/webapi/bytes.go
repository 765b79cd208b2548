package webapi

// Buffer is anything that exposes a backing byte store. Implementations may
// return a different slice on each call, for example after memory growth, so
// callers must not hold on to the result.
type Buffer interface {
	Bytes() []byte
}

// BufferHolder is an object with a .buffer property.
type BufferHolder interface {
	Buffer() Buffer
}

// ArrayBuffer is a fixed-length host byte store.
type ArrayBuffer struct {
	data []byte
}

// NewArrayBuffer allocates a zeroed buffer.
func NewArrayBuffer(n int) *ArrayBuffer {
	return &ArrayBuffer{data: make([]byte, n)}
}

// Bytes implements Buffer.
func (b *ArrayBuffer) Bytes() []byte {
	return b.data
}

// ConstructorName names the object for diagnostics.
func (b *ArrayBuffer) ConstructorName() string {
	return "ArrayBuffer"
}

// Uint8Array is a byte view over a Buffer.
type Uint8Array struct {
	buf    Buffer
	offset uint32
	length uint32
}

// NewUint8ArrayView creates a view of length bytes at offset.
func NewUint8ArrayView(buf Buffer, offset, length uint32) (*Uint8Array, error) {
	if uint64(offset)+uint64(length) > uint64(len(buf.Bytes())) {
		return nil, Errorf(RangeErrorName, "Invalid typed array length: %d", length)
	}
	return &Uint8Array{buf: buf, offset: offset, length: length}, nil
}

// NewUint8ArrayWithLength allocates a fresh zeroed array.
func NewUint8ArrayWithLength(n uint32) *Uint8Array {
	return &Uint8Array{buf: NewArrayBuffer(int(n)), length: n}
}

// NewUint8Array mirrors new Uint8Array(src): a buffer is viewed whole, an
// array-like is copied, a number allocates.
func NewUint8Array(src any) (*Uint8Array, error) {
	switch s := src.(type) {
	case *Uint8Array:
		out := NewUint8ArrayWithLength(s.length)
		copy(out.Bytes(), s.Bytes())
		return out, nil
	case Buffer:
		return &Uint8Array{buf: s, length: uint32(len(s.Bytes()))}, nil
	case []any:
		out := NewUint8ArrayWithLength(uint32(len(s)))
		data := out.Bytes()
		for i, v := range s {
			f, _ := ToFloat(v)
			data[i] = byte(int64(f))
		}
		return out, nil
	}
	if f, ok := ToFloat(src); ok {
		if f < 0 {
			return nil, Errorf(RangeErrorName, "Invalid typed array length: %s", FormatNumber(f))
		}
		return NewUint8ArrayWithLength(uint32(f)), nil
	}
	return NewUint8ArrayWithLength(0), nil
}

// Bytes returns the live window. It is a view, not a copy.
func (a *Uint8Array) Bytes() []byte {
	data := a.buf.Bytes()
	end := uint64(a.offset) + uint64(a.length)
	if end > uint64(len(data)) {
		return nil
	}
	return data[a.offset:end:end]
}

// Len returns the element count.
func (a *Uint8Array) Len() uint32 {
	return a.length
}

// Offset returns the byte offset into the buffer.
func (a *Uint8Array) Offset() uint32 {
	return a.offset
}

// Buffer implements BufferHolder.
func (a *Uint8Array) Buffer() Buffer {
	return a.buf
}

// Set copies src into the array starting at offset.
func (a *Uint8Array) Set(src *Uint8Array, offset uint32) error {
	if uint64(offset)+uint64(src.length) > uint64(a.length) {
		return Errorf(RangeErrorName, "offset is out of bounds")
	}
	// copy handles overlap between views of the same buffer.
	copy(a.Bytes()[offset:], src.Bytes())
	return nil
}

// Subarray returns a view of [begin, end) clamped to the array.
func (a *Uint8Array) Subarray(begin, end uint32) *Uint8Array {
	if end > a.length {
		end = a.length
	}
	if begin > end {
		begin = end
	}
	return &Uint8Array{buf: a.buf, offset: a.offset + begin, length: end - begin}
}

// Property implements PropertyGetter.
func (a *Uint8Array) Property(name string) (any, bool) {
	switch name {
	case "length", "byteLength":
		return float64(a.length), true
	case "byteOffset":
		return float64(a.offset), true
	case "buffer":
		return a.buf, true
	}
	return nil, false
}

// ConstructorName names the object for diagnostics.
func (a *Uint8Array) ConstructorName() string {
	return "Uint8Array"
}
