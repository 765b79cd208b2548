package wasmtest

import "bytes"

const opEnd = 0x0b

// Fixed instructions.
var (
	End         = []byte{opEnd}
	Drop        = []byte{0x1a}
	Return      = []byte{0x0f}
	I32Add      = []byte{0x6a}
	I32Sub      = []byte{0x6b}
	I32Mul      = []byte{0x6c}
	I32Shl      = []byte{0x74}
	I32ShrU     = []byte{0x76}
	I32Eqz      = []byte{0x45}
	I32Eq       = []byte{0x46}
	I32GtU      = []byte{0x4b}
	MemSize     = []byte{0x3f, 0x00}
	MemGrow     = []byte{0x40, 0x00}
	MemCopy     = []byte{0xfc, 0x0a, 0x00, 0x00}
	IfEmpty     = []byte{0x04, 0x40}
	LoopEmpty   = []byte{0x03, 0x40}
	Else        = []byte{0x05}
	Unreachable = []byte{0x00}
)

// I32Const pushes v.
func I32Const(v int32) []byte {
	var b bytes.Buffer
	b.WriteByte(0x41)
	writeS32(&b, v)
	return b.Bytes()
}

// F64Const pushes an f64 encoded from its bit pattern.
func F64Const(bits uint64) []byte {
	out := []byte{0x44}
	for i := 0; i < 8; i++ {
		out = append(out, byte(bits>>(8*i)))
	}
	return out
}

func withIndex(op byte, idx uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(op)
	writeU32(&b, idx)
	return b.Bytes()
}

// LocalGet pushes local i.
func LocalGet(i uint32) []byte { return withIndex(0x20, i) }

// LocalSet pops into local i.
func LocalSet(i uint32) []byte { return withIndex(0x21, i) }

// GlobalGet pushes global i.
func GlobalGet(i uint32) []byte { return withIndex(0x23, i) }

// GlobalSet pops into global i.
func GlobalSet(i uint32) []byte { return withIndex(0x24, i) }

// Br branches to the enclosing block at depth i.
func Br(i uint32) []byte { return withIndex(0x0c, i) }

// Call calls function i.
func Call(i uint32) []byte { return withIndex(0x10, i) }

// I32Load loads a word from the address on the stack plus offset.
func I32Load(offset uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0x28)
	writeU32(&b, 2)
	writeU32(&b, offset)
	return b.Bytes()
}

// I32Store stores a word at the address on the stack plus offset.
func I32Store(offset uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0x36)
	writeU32(&b, 2)
	writeU32(&b, offset)
	return b.Bytes()
}

// I32Store8 stores the low byte of a word.
func I32Store8(offset uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0x3a)
	writeU32(&b, 0)
	writeU32(&b, offset)
	return b.Bytes()
}

// Incr adds one to global i.
func Incr(i uint32) []byte {
	return bytes.Join([][]byte{GlobalGet(i), I32Const(1), I32Add, GlobalSet(i)}, nil)
}

// Seq concatenates instructions.
func Seq(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}
