package wasm

import (
	"encoding/binary"
	"math"
)

// LinearMemory is the subset of a guest memory the host needs.
// wazero's api.Memory satisfies it.
type LinearMemory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

// Memory caches typed views over a guest's linear memory.
//
// A view aliases the guest buffer. When the guest grows its memory the
// buffer may move, so every call into the guest must be followed by
// Invalidate. Views are also rebuilt when their length no longer matches
// the memory size.
type Memory struct {
	mem   LinearMemory
	bytes []byte
	words Words
}

// NewMemory creates a view cache over mem. mem may be nil until Attach.
func NewMemory(mem LinearMemory) *Memory {
	return &Memory{mem: mem}
}

// Attach binds the cache to a new memory and drops existing views.
func (m *Memory) Attach(mem LinearMemory) {
	m.mem = mem
	m.Invalidate()
}

// Attached reports whether a memory is bound.
func (m *Memory) Attached() bool {
	return m.mem != nil
}

// Invalidate drops cached views.
func (m *Memory) Invalidate() {
	m.bytes = nil
	m.words = nil
}

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// Bytes returns the byte view, building it if needed.
func (m *Memory) Bytes() []byte {
	if m.mem == nil {
		return nil
	}
	if m.bytes == nil || uint32(len(m.bytes)) != m.mem.Size() {
		b, ok := m.mem.Read(0, m.mem.Size())
		if !ok {
			return nil
		}
		m.bytes = b
		m.words = nil
	}
	return m.bytes
}

// Words returns the 32-bit view, building it if needed.
func (m *Memory) Words() Words {
	b := m.Bytes()
	if m.words == nil && b != nil {
		m.words = Words(b)
	}
	return m.words
}

// ReadBytes copies length bytes starting at ptr.
func (m *Memory) ReadBytes(ptr, length uint32) ([]byte, error) {
	b := m.Bytes()
	if !inRange(b, ptr, length) {
		return nil, &MemoryAccessError{Operation: "read", Address: ptr, Length: length}
	}
	out := make([]byte, length)
	copy(out, b[ptr:ptr+length])
	return out, nil
}

// WriteBytes copies data into guest memory at ptr.
func (m *Memory) WriteBytes(ptr uint32, data []byte) error {
	b := m.Bytes()
	if !inRange(b, ptr, uint32(len(data))) {
		return &MemoryAccessError{Operation: "write", Address: ptr, Length: uint32(len(data))}
	}
	copy(b[ptr:], data)
	return nil
}

// ReadUint32 reads a little-endian word at a byte address.
func (m *Memory) ReadUint32(ptr uint32) (uint32, error) {
	b := m.Bytes()
	if !inRange(b, ptr, 4) {
		return 0, &MemoryAccessError{Operation: "read_u32", Address: ptr, Length: 4}
	}
	return binary.LittleEndian.Uint32(b[ptr:]), nil
}

// WriteUint32 writes a little-endian word at a byte address.
func (m *Memory) WriteUint32(ptr, v uint32) error {
	b := m.Bytes()
	if !inRange(b, ptr, 4) {
		return &MemoryAccessError{Operation: "write_u32", Address: ptr, Length: 4}
	}
	binary.LittleEndian.PutUint32(b[ptr:], v)
	return nil
}

// WriteFloat64 writes a little-endian f64 at a byte address.
func (m *Memory) WriteFloat64(ptr uint32, v float64) error {
	b := m.Bytes()
	if !inRange(b, ptr, 8) {
		return &MemoryAccessError{Operation: "write_f64", Address: ptr, Length: 8}
	}
	binary.LittleEndian.PutUint64(b[ptr:], math.Float64bits(v))
	return nil
}

func inRange(b []byte, ptr, length uint32) bool {
	end := uint64(ptr) + uint64(length)
	return end <= uint64(len(b))
}

// Words is a little-endian 32-bit window over a byte view.
// Index i addresses the word at byte offset 4*i.
type Words []byte

// Len returns the number of whole words.
func (w Words) Len() int {
	return len(w) / 4
}

// Get returns word i.
func (w Words) Get(i uint32) (uint32, bool) {
	off := uint64(i) * 4
	if off+4 > uint64(len(w)) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(w[off:]), true
}

// Set stores word i.
func (w Words) Set(i, v uint32) bool {
	off := uint64(i) * 4
	if off+4 > uint64(len(w)) {
		return false
	}
	binary.LittleEndian.PutUint32(w[off:], v)
	return true
}
