package bindgen

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/bindgen-host/internal/wasm/wasmtest"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

type valTypes = []wasmtest.ValType

var (
	i32  = wasmtest.I32
	none valTypes
)

func i32s(n int) valTypes {
	out := make(valTypes, n)
	for i := range out {
		out[i] = i32
	}
	return out
}

// importSig is one host import the test guest links against. Each import
// is re-exported as "call:<name>" so tests can drive it from Go.
type importSig struct {
	name    string
	params  valTypes
	results valTypes
}

func imp(name string, params int, returns bool) importSig {
	s := importSig{name: name, params: i32s(params)}
	if returns {
		s.results = valTypes{i32}
	}
	return s
}

// fixture describes a test guest.
//
// The guest has a bump allocator starting at 1024 that grows memory on
// demand, counts frees and destructor calls, and records closure adapter
// arguments in exported globals.
type fixture struct {
	imports  []importSig
	noMemory bool
	exnStore bool
	// start, when set, is the body of __wbindgen_start.
	start func(calls map[string]uint32) [][]byte
	// reenter makes the invoke1 adapter call __wbg_call0 on its argument.
	reenter bool
	// dropSelf makes the invoke1 adapter pass its argument to
	// __wbindgen_cb_drop.
	dropSelf bool
	// spin exports "spin", which never returns.
	spin bool
}

const heapBase = 1024

// Global indices, in declaration order.
const (
	globalTop uint32 = iota
	globalFrees
	globalDestroys
	globalDestroyedA
	globalInvocations
	globalArg0
	globalArg1
	globalStored
)

func (f fixture) build() []byte {
	m := wasmtest.New()

	imports := f.imports
	if f.reenter {
		imports = append(imports, imp("__wbg_call0", 2, true))
	}
	if f.dropSelf {
		imports = append(imports, imp("__wbindgen_cb_drop", 1, true))
	}
	calls := make(map[string]uint32, len(imports))
	var linked []importSig
	for _, s := range imports {
		if _, dup := calls[s.name]; dup {
			continue
		}
		calls[s.name] = m.Import(abi.ImportModule, s.name, s.params, s.results)
		linked = append(linked, s)
	}

	if !f.noMemory {
		m.Memory(1, abi.ExportMemory)
	}
	top := m.GlobalI32(heapBase, "top")
	frees := m.GlobalI32(0, "frees")
	destroys := m.GlobalI32(0, "destroys")
	destroyedA := m.GlobalI32(0, "destroyed_a")
	invocations := m.GlobalI32(0, "invocations")
	arg0 := m.GlobalI32(0, "arg0")
	arg1 := m.GlobalI32(0, "arg1")
	stored := m.GlobalI32(0, "stored")

	for _, s := range linked {
		body := make([][]byte, 0, len(s.params)+1)
		for i := range s.params {
			body = append(body, wasmtest.LocalGet(uint32(i)))
		}
		body = append(body, wasmtest.Call(calls[s.name]))
		m.Export("call:"+s.name, m.Func(s.params, s.results, nil, body...))
	}

	if !f.noMemory {
		// malloc(size, align) -> ptr
		malloc := m.Func(i32s(2), valTypes{i32}, valTypes{i32},
			wasmtest.GlobalGet(top), wasmtest.LocalSet(2),
			wasmtest.GlobalGet(top), wasmtest.LocalGet(0), wasmtest.I32Add, wasmtest.GlobalSet(top),
			wasmtest.GlobalGet(top), wasmtest.MemSize, wasmtest.I32Const(16), wasmtest.I32Shl, wasmtest.I32GtU,
			wasmtest.IfEmpty,
			wasmtest.GlobalGet(top), wasmtest.I32Const(16), wasmtest.I32ShrU, wasmtest.I32Const(1), wasmtest.I32Add,
			wasmtest.MemSize, wasmtest.I32Sub, wasmtest.MemGrow, wasmtest.Drop,
			wasmtest.End,
			wasmtest.LocalGet(2),
		)
		m.Export(abi.ExportMalloc, malloc)

		// realloc(ptr, old, new, align) -> ptr
		realloc := m.Func(i32s(4), valTypes{i32}, valTypes{i32},
			wasmtest.LocalGet(2), wasmtest.LocalGet(3), wasmtest.Call(malloc), wasmtest.LocalSet(4),
			wasmtest.LocalGet(4), wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasmtest.MemCopy,
			wasmtest.LocalGet(4),
		)
		m.Export(abi.ExportRealloc, realloc)

		m.Export(abi.ExportFree, m.Func(i32s(3), none, nil, wasmtest.Incr(frees)))
	}

	m.Export(abi.ExportDestroyClosure, m.Func(i32s(3), none, nil,
		wasmtest.Incr(destroys),
		wasmtest.LocalGet(1), wasmtest.GlobalSet(destroyedA),
	))

	m.Export(abi.AdapterExport(abi.ShapeInvoke0), m.Func(i32s(2), none, nil,
		wasmtest.Incr(invocations)))

	invoke1 := [][]byte{
		wasmtest.Incr(invocations),
		wasmtest.LocalGet(2), wasmtest.GlobalSet(arg0),
	}
	if f.reenter {
		invoke1 = append(invoke1,
			wasmtest.LocalGet(2), wasmtest.I32Const(int32(abi.HandleUndefined)),
			wasmtest.Call(calls["__wbg_call0"]), wasmtest.Drop)
	}
	if f.dropSelf {
		invoke1 = append(invoke1,
			wasmtest.LocalGet(2), wasmtest.Call(calls["__wbindgen_cb_drop"]), wasmtest.Drop)
	}
	m.Export(abi.AdapterExport(abi.ShapeInvoke1), m.Func(i32s(3), none, nil, invoke1...))

	m.Export(abi.AdapterExport(abi.ShapeInvoke2), m.Func(i32s(4), none, nil,
		wasmtest.Incr(invocations),
		wasmtest.LocalGet(2), wasmtest.GlobalSet(arg0),
		wasmtest.LocalGet(3), wasmtest.GlobalSet(arg1),
	))

	m.Export(abi.AdapterExport(abi.ShapeReturn0), m.Func(i32s(2), valTypes{i32}, nil,
		wasmtest.Incr(invocations),
		wasmtest.I32Const(int32(abi.HandleTrue)),
	))

	// return1 hands its argument back.
	m.Export(abi.AdapterExport(abi.ShapeReturn1), m.Func(i32s(3), valTypes{i32}, nil,
		wasmtest.Incr(invocations),
		wasmtest.LocalGet(2),
	))

	if f.exnStore {
		m.Export(abi.ExportExnStore, m.Func(i32s(1), none, nil,
			wasmtest.LocalGet(0), wasmtest.GlobalSet(stored)))
	}

	if f.spin {
		m.Export("spin", m.Func(none, none, nil,
			wasmtest.LoopEmpty, wasmtest.Br(0), wasmtest.End))
	}

	if f.start != nil {
		m.Export(abi.ExportStart, m.Func(none, none, nil, f.start(calls)...))
	}

	return m.Bytes()
}

func newTestBoundary(t *testing.T, opts Options) *Boundary {
	t.Helper()
	ctx := context.Background()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	if opts.Config.Runtime.MemoryPages == 0 {
		opts.Config = DefaultConfig()
	}
	b, err := New(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(ctx) })
	return b
}

// startGuest creates a boundary and runs the fixture guest in it.
func startGuest(t *testing.T, f fixture) *Boundary {
	t.Helper()
	b := newTestBoundary(t, Options{})
	_, err := b.InitSync(context.Background(), FromBytes("fixture", f.build()))
	require.NoError(t, err)
	return b
}

func global(t *testing.T, b *Boundary, name string) uint32 {
	t.Helper()
	g := b.Instance().Global(name)
	require.NotNil(t, g, "global %s", name)
	return uint32(g.Get())
}

// invoke calls the re-exported import name with i32 arguments.
func invoke(t *testing.T, b *Boundary, name string, args ...uint32) []uint64 {
	t.Helper()
	res, err := callImport(b, name, args...)
	require.NoError(t, err)
	return res
}

func callImport(b *Boundary, name string, args ...uint32) ([]uint64, error) {
	params := make([]uint64, len(args))
	for i, a := range args {
		params[i] = uint64(a)
	}
	return b.Call(context.Background(), "call:"+name, params...)
}

// putString writes s into guest memory at a scratch address and returns
// its pointer and length.
func putString(t *testing.T, b *Boundary, s string) (uint32, uint32) {
	t.Helper()
	ptr, length, err := b.Transcoder().PassString(context.Background(), s)
	require.NoError(t, err)
	return ptr, length
}
