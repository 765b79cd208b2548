package bindgen

import (
	"context"

	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// registerImports fills the import table.
//
// Imports marked catching in their comment report host failures through the
// error channel and return zero. Every other import traps the guest call on
// failure by panicking, which wazero turns into an error for the caller.
func (b *Boundary) registerImports(m *wasm.HostModule) {
	b.registerCoreImports(m)
	b.registerClosureImports(m)
	b.registerConsoleImports(m)
	b.registerGlobalImports(m)
	b.registerWindowImports(m)
	b.registerDOMImports(m)
	b.registerURLImports(m)
	b.registerCryptoImports(m)
	b.registerPromiseImports(m)
	b.registerBytesImports(m)
	b.registerJSONImports(m)
}

func (b *Boundary) registerCoreImports(m *wasm.HostModule) {
	m.Add("__wbindgen_object_drop_ref", func(h uint32) {
		if err := b.heap.Release(h); err != nil {
			panic(err)
		}
	}, "handle")

	m.Add("__wbindgen_object_clone_ref", func(h uint32) uint32 {
		return b.heap.Clone(h)
	}, "handle")

	m.Add("__wbindgen_string_new", func(ptr, length uint32) uint32 {
		return b.add(b.mustString(ptr, length))
	}, "ptr", "len")

	m.Add("__wbindgen_string_get", func(ctx context.Context, out, h uint32) {
		s, ok := b.value(h).(string)
		mustDo(b.strings.WriteOptionalString(ctx, out, s, ok))
	}, "out", "handle")

	m.Add("__wbindgen_number_new", func(v float64) uint32 {
		return b.add(v)
	}, "value")

	m.Add("__wbindgen_number_get", func(out, h uint32) {
		v, ok := b.value(h).(float64)
		mustDo(b.strings.WriteOptionalNumber(out, v, ok))
	}, "out", "handle")

	m.Add("__wbindgen_is_string", func(h uint32) uint32 {
		return boolToI32(webapi.TypeOf(b.value(h)) == "string")
	}, "handle")

	m.Add("__wbindgen_is_undefined", func(h uint32) uint32 {
		return boolToI32(abi.IsUndefined(b.value(h)))
	}, "handle")

	m.Add("__wbindgen_is_null", func(h uint32) uint32 {
		return boolToI32(b.value(h) == nil)
	}, "handle")

	m.Add("__wbindgen_is_function", func(h uint32) uint32 {
		return boolToI32(webapi.TypeOf(b.value(h)) == "function")
	}, "handle")

	m.Add("__wbindgen_is_object", func(h uint32) uint32 {
		return boolToI32(webapi.IsObject(b.value(h)))
	}, "handle")

	m.Add("__wbindgen_debug_string", func(ctx context.Context, out, h uint32) {
		mustDo(b.strings.WriteString(ctx, out, webapi.DebugString(b.value(h))))
	}, "out", "handle")

	m.Add("__wbindgen_throw", func(ptr, length uint32) {
		panic(b.exn.Raise(b.mustString(ptr, length)))
	}, "ptr", "len")

	m.Add("__wbindgen_rethrow", func(h uint32) {
		panic(&GuestError{Value: b.heap.Take(h)})
	}, "handle")

	m.Add("__wbindgen_memory", func() uint32 {
		return b.add(b.memoryObject)
	})

	m.Add("__wbindgen_exn_take", func() uint32 {
		return b.exn.Take()
	})
}

func (b *Boundary) registerClosureImports(m *wasm.HostModule) {
	m.Add("__wbindgen_cb_drop", func(h uint32) uint32 {
		c := mustCast[*Closure](b.heap.Take(h), "closure")
		return boolToI32(c.guestDrop())
	}, "handle")

	for _, shape := range abi.Shapes() {
		shape := shape
		adapter := abi.AdapterExport(shape)
		m.Add(abi.ClosureWrapperImport(shape), func(a, aux, dtor uint32) uint32 {
			return b.add(b.newClosure(a, aux, dtor, shape, adapter))
		}, "a", "b", "dtor")
	}
}

// addClosureWrapper registers a generated wrapper with a fixed destructor.
func (b *Boundary) addClosureWrapper(m *wasm.HostModule, w ClosureWrapper) {
	m.Add(w.Import, func(a, aux, _ uint32) uint32 {
		return b.add(b.newClosure(a, aux, w.Dtor, w.Shape, w.Adapter))
	}, "a", "b", "unused")
}

func (b *Boundary) value(h uint32) any {
	return b.heap.Get(h)
}

func (b *Boundary) add(v any) uint32 {
	return b.heap.Alloc(v)
}

// addOptional returns 0 for absent values so the guest sees None.
func (b *Boundary) addOptional(v any, ok bool) uint32 {
	if !ok {
		return 0
	}
	return b.add(v)
}

func (b *Boundary) mustString(ptr, length uint32) string {
	s, err := b.strings.String(ptr, length)
	if err != nil {
		panic(err)
	}
	return s
}

// stringArg decodes a string argument for a catching import.
func (b *Boundary) stringArg(ptr, length uint32) (string, error) {
	return b.strings.String(ptr, length)
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}

// cast type-checks a host value taken from the heap.
func cast[T any](v any, what string) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, webapi.Errorf(webapi.TypeErrorName, "expected %s, got %s", what, webapi.DebugString(v))
	}
	return t, nil
}

func mustCast[T any](v any, what string) T {
	t, err := cast[T](v, what)
	if err != nil {
		panic(err)
	}
	return t
}

func boolToI32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
