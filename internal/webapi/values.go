// Package webapi provides the host-side objects a bindgen guest reaches
// through its imports: a window with a document tree, location and history,
// timers and animation frames, promises, byte arrays, JSON and a console.
//
// Values follow the dynamic model guests expect. Numbers are float64,
// strings are Go strings, null is nil and undefined is abi.Undefined.
// Functions are Callable.
package webapi

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// Callable is a host value that can be invoked like a function.
type Callable interface {
	Call(ctx context.Context, args ...any) (any, error)
}

// ThisCallable is a Callable that also observes its receiver.
type ThisCallable interface {
	Callable
	CallWith(ctx context.Context, this any, args ...any) (any, error)
}

// Func adapts a Go function to Callable.
type Func func(ctx context.Context, args ...any) (any, error)

// Call implements Callable.
func (f Func) Call(ctx context.Context, args ...any) (any, error) {
	return f(ctx, args...)
}

// Invoke calls fn with an explicit receiver when it supports one.
func Invoke(ctx context.Context, fn any, this any, args ...any) (any, error) {
	switch f := fn.(type) {
	case ThisCallable:
		return f.CallWith(ctx, this, args...)
	case Callable:
		return f.Call(ctx, args...)
	}
	return nil, Errorf(TypeErrorName, "%s is not a function", DebugString(fn))
}

// PropertyGetter exposes named properties for reflection.
type PropertyGetter interface {
	Property(name string) (any, bool)
}

// Object is a plain script object.
type Object map[string]any

// Property implements PropertyGetter.
func (o Object) Property(name string) (any, bool) {
	v, ok := o[name]
	return v, ok
}

// Arg returns args[i], or undefined when absent.
func Arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return abi.Undefined
}

// TypeOf mirrors the script typeof operator.
func TypeOf(v any) string {
	switch v.(type) {
	case abi.UndefinedValue:
		return "undefined"
	case nil:
		return "object"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, float32, int, int32, int64, uint32, uint64:
		return "number"
	case Callable:
		return "function"
	}
	return "object"
}

// IsObject reports typeof v === "object" && v !== null.
func IsObject(v any) bool {
	return v != nil && TypeOf(v) == "object"
}

// ToFloat converts numeric values to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Truthy applies script truthiness.
func Truthy(v any) bool {
	switch x := v.(type) {
	case abi.UndefinedValue, nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := ToFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// Get implements Reflect.get for host objects.
func Get(target, key any) (any, error) {
	if !IsObject(target) && TypeOf(target) != "function" {
		return nil, Errorf(TypeErrorName, "Reflect.get called on non-object")
	}
	name := ToString(key)

	if arr, ok := target.([]any); ok {
		if name == "length" {
			return float64(len(arr)), nil
		}
		if i, err := strconv.Atoi(name); err == nil && i >= 0 && i < len(arr) {
			return arr[i], nil
		}
		return abi.Undefined, nil
	}
	if m, ok := target.(map[string]any); ok {
		target = Object(m)
	}
	if pg, ok := target.(PropertyGetter); ok {
		if v, ok := pg.Property(name); ok {
			return v, nil
		}
	}
	return abi.Undefined, nil
}

// ToString mirrors String(v) for the values the host produces.
func ToString(v any) string {
	switch x := v.(type) {
	case abi.UndefinedValue:
		return "undefined"
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case *Error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	if f, ok := ToFloat(v); ok {
		return FormatNumber(f)
	}
	if IsObject(v) {
		return "[object " + constructorName(v) + "]"
	}
	return fmt.Sprint(v)
}

// FormatNumber renders a float the way scripts print numbers.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if sign == "+" {
			return mant + "e+" + digits
		}
		return mant + "e-" + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Constructor names objects report about themselves.
type constructorNamer interface {
	ConstructorName() string
}

func constructorName(v any) string {
	if n, ok := v.(constructorNamer); ok {
		return n.ConstructorName()
	}
	switch v.(type) {
	case map[string]any, Object:
		return "Object"
	case []any:
		return "Array"
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// DebugString renders any host value for diagnostics.
func DebugString(v any) string {
	switch x := v.(type) {
	case abi.UndefinedValue:
		return "undefined"
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case string:
		return `"` + x + `"`
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = DebugString(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Error:
		return x.Name + ": " + x.Message + "\n" + x.Stack
	case Callable:
		if named, ok := v.(interface{ Name() string }); ok && named.Name() != "" {
			return "Function(" + named.Name() + ")"
		}
		return "Function"
	}
	if f, ok := ToFloat(v); ok {
		return FormatNumber(f)
	}

	name := constructorName(v)
	if name == "Object" {
		data, err := sonic.ConfigStd.MarshalToString(v)
		if err != nil {
			return "Object"
		}
		return "Object(" + data + ")"
	}
	return name
}
