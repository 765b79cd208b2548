package abi

// Wire-level contract between the host runtime and bindgen guest modules.
// Guests are compiled against these numbers, so they never change at runtime.

// Heap layout.
const (
	// ReservedSlots is the number of low handles that are never allocated.
	// They read as undefined.
	ReservedSlots = 128

	HandleUndefined uint32 = ReservedSlots
	HandleNull      uint32 = ReservedSlots + 1
	HandleTrue      uint32 = ReservedSlots + 2
	HandleFalse     uint32 = ReservedSlots + 3
)

// HeapStart is the first handle the allocator hands out.
const HeapStart = ReservedSlots + 4

// NoException is returned by the exception take import when the slot is empty.
const NoException uint32 = 0

// ImportModule is the module name guests import host functions from.
const ImportModule = "wbg"

// UndefinedValue is the host representation of the script "undefined" value.
// Null is represented by a nil interface.
type UndefinedValue struct{}

// Undefined is the single undefined value.
var Undefined = UndefinedValue{}

// IsUndefined reports whether v is the undefined value.
func IsUndefined(v any) bool {
	_, ok := v.(UndefinedValue)
	return ok
}

// Shape is the calling convention of a closure adapter export.
type Shape int

const (
	// ShapeInvoke0 is adapter(a, b).
	ShapeInvoke0 Shape = iota + 1
	// ShapeInvoke1 is adapter(a, b, arg).
	ShapeInvoke1
	// ShapeInvoke2 is adapter(a, b, arg0, arg1).
	ShapeInvoke2
	// ShapeReturn0 is adapter(a, b) -> handle.
	ShapeReturn0
	// ShapeReturn1 is adapter(a, b, arg) -> handle.
	ShapeReturn1
)

var shapeNames = map[Shape]string{
	ShapeInvoke0: "invoke0",
	ShapeInvoke1: "invoke1",
	ShapeInvoke2: "invoke2",
	ShapeReturn0: "return0",
	ShapeReturn1: "return1",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return "unknown"
}

// Arity returns the number of host arguments the adapter accepts.
func (s Shape) Arity() int {
	switch s {
	case ShapeInvoke1, ShapeReturn1:
		return 1
	case ShapeInvoke2:
		return 2
	default:
		return 0
	}
}

// Returns reports whether the adapter returns a handle.
func (s Shape) Returns() bool {
	return s == ShapeReturn0 || s == ShapeReturn1
}

// ParseShape resolves a shape from its name.
func ParseShape(name string) (Shape, bool) {
	for s, n := range shapeNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// Shapes lists every supported adapter shape in declaration order.
func Shapes() []Shape {
	return []Shape{ShapeInvoke0, ShapeInvoke1, ShapeInvoke2, ShapeReturn0, ShapeReturn1}
}

// Default guest export names.
const (
	ExportMemory         = "memory"
	ExportMalloc         = "__wbindgen_malloc"
	ExportRealloc        = "__wbindgen_realloc"
	ExportFree           = "__wbindgen_free"
	ExportStart          = "__wbindgen_start"
	ExportExnStore       = "__wbindgen_exn_store"
	ExportDestroyClosure = "__wbindgen_destroy_closure"
)

// AdapterExport returns the default adapter export name for a shape.
func AdapterExport(s Shape) string {
	return "__wbindgen_" + s.String()
}

// ClosureWrapperImport returns the canonical closure wrapper import for a shape.
func ClosureWrapperImport(s Shape) string {
	return "__wbindgen_closure_wrapper_" + s.String()
}
