package bindgen

import (
	"context"

	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

func (b *Boundary) registerBytesImports(m *wasm.HostModule) {
	m.Add("__wbg_buffer", func(h uint32) uint32 {
		return b.add(mustCast[webapi.BufferHolder](b.value(h), "buffer owner").Buffer())
	}, "target")

	m.Add("__wbg_new_Uint8Array_with_byte_offset_and_length", func(h, offset, length uint32) uint32 {
		buf := mustCast[webapi.Buffer](b.value(h), "ArrayBuffer")
		arr, err := webapi.NewUint8ArrayView(buf, offset, length)
		mustDo(err)
		return b.add(arr)
	}, "buffer", "byte_offset", "length")

	m.Add("__wbg_new_Uint8Array", func(h uint32) uint32 {
		arr, err := webapi.NewUint8Array(b.value(h))
		mustDo(err)
		return b.add(arr)
	}, "source")

	m.Add("__wbg_Uint8Array_set", func(dst, src, offset uint32) {
		target := mustCast[*webapi.Uint8Array](b.value(dst), "Uint8Array")
		source := mustCast[*webapi.Uint8Array](b.value(src), "Uint8Array")
		mustDo(target.Set(source, offset))
	}, "target", "source", "offset")

	m.Add("__wbg_new_Uint8Array_with_length", func(n uint32) uint32 {
		return b.add(webapi.NewUint8ArrayWithLength(n))
	}, "length")

	m.Add("__wbg_subarray", func(h, begin, end uint32) uint32 {
		arr := mustCast[*webapi.Uint8Array](b.value(h), "Uint8Array")
		return b.add(arr.Subarray(begin, end))
	}, "array", "begin", "end")

	m.Add("__wbg_length", func(h uint32) uint32 {
		return mustCast[*webapi.Uint8Array](b.value(h), "Uint8Array").Len()
	}, "array")
}

func (b *Boundary) registerJSONImports(m *wasm.HostModule) {
	// catching
	m.Add("__wbg_JSON_parse", func(ctx context.Context, ptr, length uint32) uint32 {
		return b.catch(ctx, "__wbg_JSON_parse", func() (uint32, error) {
			text, err := b.stringArg(ptr, length)
			if err != nil {
				return 0, err
			}
			v, err := webapi.JSONParse(text)
			if err != nil {
				return 0, err
			}
			return b.add(v), nil
		})
	}, "ptr", "len")

	// catching
	m.Add("__wbg_JSON_stringify", func(ctx context.Context, h uint32) uint32 {
		return b.catch(ctx, "__wbg_JSON_stringify", func() (uint32, error) {
			return b.stringify(ctx, b.value(h), abi.Undefined, abi.Undefined)
		})
	}, "value")

	// catching
	m.Add("__wbg_JSON_stringify_with_replacer_and_space", func(ctx context.Context, h, replacer, space uint32) uint32 {
		return b.catch(ctx, "__wbg_JSON_stringify_with_replacer_and_space", func() (uint32, error) {
			return b.stringify(ctx, b.value(h), b.value(replacer), b.value(space))
		})
	}, "value", "replacer", "space")
}

func (b *Boundary) stringify(ctx context.Context, value, replacer, space any) (uint32, error) {
	out, err := webapi.JSONStringify(ctx, value, replacer, space)
	if err != nil {
		return 0, err
	}
	return b.add(out), nil
}
