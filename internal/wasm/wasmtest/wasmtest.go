// Package wasmtest assembles small Wasm binaries for tests.
//
// It covers the handful of sections test guests need: types, function
// imports, functions, one memory, mutable i32 globals, exports and code.
package wasmtest

import (
	"bytes"
	"fmt"
)

// ValType is a Wasm value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10

	kindFunc   = 0x00
	kindMemory = 0x02
	kindGlobal = 0x03
)

type funcType struct {
	params  []ValType
	results []ValType
}

func (t funcType) key() string {
	return fmt.Sprintf("%x>%x", t.params, t.results)
}

type importFunc struct {
	module string
	name   string
	typ    uint32
}

type function struct {
	typ    uint32
	locals []ValType
	body   []byte
	set    bool
}

type global struct {
	typ  ValType
	init []byte
}

type export struct {
	name  string
	kind  byte
	index uint32
}

// Module is a Wasm module under construction.
type Module struct {
	types     []funcType
	typeIndex map[string]uint32
	imports   []importFunc
	funcs     []function
	memory    *[2]uint32
	globals   []global
	exports   []export
}

// New creates an empty module.
func New() *Module {
	return &Module{typeIndex: make(map[string]uint32)}
}

func (m *Module) typeOf(params, results []ValType) uint32 {
	t := funcType{params: params, results: results}
	if idx, ok := m.typeIndex[t.key()]; ok {
		return idx
	}
	idx := uint32(len(m.types))
	m.types = append(m.types, t)
	m.typeIndex[t.key()] = idx
	return idx
}

// Import declares an imported function and returns its function index.
// Imports must be declared before any function.
func (m *Module) Import(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must precede functions")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typ: m.typeOf(params, results)})
	return uint32(len(m.imports) - 1)
}

// Declare reserves a function index so bodies can reference each other.
func (m *Module) Declare(params, results []ValType) uint32 {
	m.funcs = append(m.funcs, function{typ: m.typeOf(params, results)})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Define sets the locals and body of a declared function. The body must not
// include the trailing end opcode.
func (m *Module) Define(index uint32, locals []ValType, body ...[]byte) {
	f := &m.funcs[index-uint32(len(m.imports))]
	f.locals = locals
	f.body = bytes.Join(body, nil)
	f.set = true
}

// Func declares and defines a function in one step.
func (m *Module) Func(params, results, locals []ValType, body ...[]byte) uint32 {
	idx := m.Declare(params, results)
	m.Define(idx, locals, body...)
	return idx
}

// Memory declares the module memory and exports it under name when non-empty.
func (m *Module) Memory(minPages uint32, name string) {
	m.memory = &[2]uint32{minPages, 0}
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: kindMemory, index: 0})
	}
}

// GlobalI32 declares a mutable i32 global and exports it when name is non-empty.
func (m *Module) GlobalI32(init int32, name string) uint32 {
	idx := uint32(len(m.globals))
	m.globals = append(m.globals, global{typ: I32, init: I32Const(init)})
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: kindGlobal, index: idx})
	}
	return idx
}

// Export exports a function.
func (m *Module) Export(name string, funcIndex uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, index: funcIndex})
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00})

	if len(m.types) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.types)))
		for _, t := range m.types {
			sec.WriteByte(0x60)
			writeValTypes(&sec, t.params)
			writeValTypes(&sec, t.results)
		}
		writeSection(&out, sectionType, sec.Bytes())
	}

	if len(m.imports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.imports)))
		for _, imp := range m.imports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(kindFunc)
			writeU32(&sec, imp.typ)
		}
		writeSection(&out, sectionImport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			writeU32(&sec, f.typ)
		}
		writeSection(&out, sectionFunction, sec.Bytes())
	}

	if m.memory != nil {
		var sec bytes.Buffer
		writeU32(&sec, 1)
		sec.WriteByte(0x00) // no maximum
		writeU32(&sec, m.memory[0])
		writeSection(&out, sectionMemory, sec.Bytes())
	}

	if len(m.globals) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.WriteByte(byte(g.typ))
			sec.WriteByte(0x01) // mutable
			sec.Write(g.init)
			sec.WriteByte(opEnd)
		}
		writeSection(&out, sectionGlobal, sec.Bytes())
	}

	if len(m.exports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.exports)))
		for _, e := range m.exports {
			writeName(&sec, e.name)
			sec.WriteByte(e.kind)
			writeU32(&sec, e.index)
		}
		writeSection(&out, sectionExport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.funcs)))
		for i, f := range m.funcs {
			if !f.set {
				panic(fmt.Sprintf("wasmtest: function %d declared but never defined", i+len(m.imports)))
			}
			var body bytes.Buffer
			writeU32(&body, uint32(len(f.locals)))
			for _, l := range f.locals {
				writeU32(&body, 1)
				body.WriteByte(byte(l))
			}
			body.Write(f.body)
			body.WriteByte(opEnd)

			writeU32(&sec, uint32(body.Len()))
			sec.Write(body.Bytes())
		}
		writeSection(&out, sectionCode, sec.Bytes())
	}

	return out.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, payload []byte) {
	w.WriteByte(id)
	writeU32(w, uint32(len(payload)))
	w.Write(payload)
}

func writeValTypes(w *bytes.Buffer, types []ValType) {
	writeU32(w, uint32(len(types)))
	for _, t := range types {
		w.WriteByte(byte(t))
	}
}

func writeName(w *bytes.Buffer, s string) {
	writeU32(w, uint32(len(s)))
	w.WriteString(s)
}

func writeU32(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func writeS32(w *bytes.Buffer, v int32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		w.WriteByte(b)
		if done {
			return
		}
	}
}
