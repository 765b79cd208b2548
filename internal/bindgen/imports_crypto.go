package bindgen

import (
	"context"

	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
)

func (b *Boundary) registerCryptoImports(m *wasm.HostModule) {
	// Property lookups getrandom uses to find a randomness source.
	for _, prop := range []string{"crypto", "process", "versions", "node", "msCrypto"} {
		prop := prop
		m.Add("__wbg_"+prop, func(h uint32) uint32 {
			v, err := webapi.Get(b.value(h), prop)
			mustDo(err)
			return b.add(v)
		}, "target")
	}

	// catching; there is no module system to require from.
	m.Add("__wbg_require", func(ctx context.Context) uint32 {
		return b.catch(ctx, "__wbg_require", func() (uint32, error) {
			return 0, webapi.NewError(webapi.ReferenceErrorName, "module is not defined")
		})
	})

	// catching; the array handle is owned by this call.
	m.Add("__wbg_randomFillSync", func(ctx context.Context, c, arr uint32) {
		array := b.heap.Take(arr)
		b.catch(ctx, "__wbg_randomFillSync", func() (uint32, error) {
			source, err := cast[*webapi.Crypto](b.value(c), "Crypto")
			if err != nil {
				return 0, err
			}
			a, err := cast[*webapi.Uint8Array](array, "Uint8Array")
			if err != nil {
				return 0, err
			}
			return 0, source.RandomFillSync(a)
		})
	}, "crypto", "array")

	// catching
	m.Add("__wbg_getRandomValues", func(ctx context.Context, c, arr uint32) {
		b.catch(ctx, "__wbg_getRandomValues", func() (uint32, error) {
			source, err := cast[*webapi.Crypto](b.value(c), "Crypto")
			if err != nil {
				return 0, err
			}
			a, err := cast[*webapi.Uint8Array](b.value(arr), "Uint8Array")
			if err != nil {
				return 0, err
			}
			return 0, source.GetRandomValues(a)
		})
	}, "crypto", "array")
}
