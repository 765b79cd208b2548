package webapi

import (
	"context"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// jsonAPI sorts object keys so output is deterministic and leaves HTML
// characters unescaped, as scripts do.
var jsonAPI = sonic.Config{
	SortMapKeys:    true,
	ValidateString: true,
}.Froze()

// JSONParse implements JSON.parse. Objects become Object, arrays []any and
// numbers float64.
func JSONParse(text string) (any, error) {
	var v any
	if err := jsonAPI.UnmarshalFromString(text, &v); err != nil {
		return nil, Errorf(SyntaxErrorName, "JSON.parse: %v", err)
	}
	return fromJSON(v), nil
}

func fromJSON(v any) any {
	switch x := v.(type) {
	case map[string]any:
		obj := make(Object, len(x))
		for k, item := range x {
			obj[k] = fromJSON(item)
		}
		return obj
	case []any:
		for i, item := range x {
			x[i] = fromJSON(item)
		}
		return x
	}
	return v
}

// JSONStringify implements JSON.stringify. It returns undefined for values
// that have no JSON form. replacer may be a Callable or an array of property
// names; space may be a number or a string.
func JSONStringify(ctx context.Context, value, replacer, space any) (any, error) {
	s := &stringifier{ctx: ctx, stack: make(map[uintptr]bool)}
	switch r := replacer.(type) {
	case Callable:
		s.replacer = r
	case []any:
		s.allow = make(map[string]bool, len(r))
		for _, k := range r {
			s.allow[ToString(k)] = true
		}
	}

	value, err := s.replace("", value)
	if err != nil {
		return nil, err
	}

	plain, ok, err := s.convert(value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return abi.Undefined, nil
	}

	indent := indentOf(space)
	var data []byte
	if indent == "" {
		data, err = jsonAPI.Marshal(plain)
	} else {
		data, err = jsonAPI.MarshalIndent(plain, "", indent)
	}
	if err != nil {
		return nil, Errorf(TypeErrorName, "JSON.stringify: %v", err)
	}
	return string(data), nil
}

type stringifier struct {
	ctx      context.Context
	replacer Callable
	allow    map[string]bool
	stack    map[uintptr]bool
}

// convert maps a host value to something the encoder accepts. ok is false
// when the value is omitted (undefined, functions).
func (s *stringifier) convert(v any) (any, bool, error) {
	switch x := v.(type) {
	case abi.UndefinedValue, Callable:
		return nil, false, nil
	case nil, bool, string:
		return x, true, nil
	case []any:
		leave, err := s.enter(x)
		if err != nil {
			return nil, false, err
		}
		defer leave()

		out := make([]any, len(x))
		for i, item := range x {
			item, err := s.replace(ToString(float64(i)), item)
			if err != nil {
				return nil, false, err
			}
			c, ok, err := s.convert(item)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				c = nil
			}
			out[i] = c
		}
		return out, true, nil
	case map[string]any:
		return s.object(Object(x))
	case Object:
		return s.object(x)
	case *Uint8Array:
		obj := make(Object, x.Len())
		for i, b := range x.Bytes() {
			obj[FormatNumber(float64(i))] = float64(b)
		}
		return s.object(obj)
	case *Error:
		return map[string]any{}, true, nil
	}

	if f, ok := ToFloat(v); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true, nil
		}
		return f, true, nil
	}
	if IsObject(v) {
		return map[string]any{}, true, nil
	}
	return nil, false, nil
}

func (s *stringifier) object(obj Object) (any, bool, error) {
	leave, err := s.enter(obj)
	if err != nil {
		return nil, false, err
	}
	defer leave()

	keys := make([]string, 0, len(obj))
	for k := range obj {
		if s.allow != nil && !s.allow[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		item, err := s.replace(k, obj[k])
		if err != nil {
			return nil, false, err
		}
		c, ok, err := s.convert(item)
		if err != nil {
			return nil, false, err
		}
		if ok {
			out[k] = c
		}
	}
	return out, true, nil
}

// enter marks a container as being serialized and fails on re-entry.
func (s *stringifier) enter(container any) (func(), error) {
	rv := reflect.ValueOf(container)
	if rv.Len() == 0 {
		return func() {}, nil
	}
	id := rv.Pointer()
	if s.stack[id] {
		return nil, Errorf(TypeErrorName, "Converting circular structure to JSON")
	}
	s.stack[id] = true
	return func() { delete(s.stack, id) }, nil
}

func (s *stringifier) replace(key string, v any) (any, error) {
	if s.replacer == nil {
		return v, nil
	}
	return s.replacer.Call(s.ctx, key, v)
}

func indentOf(space any) string {
	if f, ok := ToFloat(space); ok {
		n := int(math.Min(10, math.Max(0, f)))
		return strings.Repeat(" ", n)
	}
	if str, ok := space.(string); ok {
		if len(str) > 10 {
			return str[:10]
		}
		return str
	}
	return ""
}
