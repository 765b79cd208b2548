package bindgen

import (
	"context"

	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
)

type hrefer interface {
	Href() string
}

type searcher interface {
	Search() string
}

func (b *Boundary) registerURLImports(m *wasm.HostModule) {
	// catching
	m.Add("__wbg_href", func(ctx context.Context, out, h uint32) {
		b.catch(ctx, "__wbg_href", func() (uint32, error) {
			v, err := cast[hrefer](b.value(h), "Location or URL")
			if err != nil {
				return 0, err
			}
			return 0, b.strings.WriteString(ctx, out, v.Href())
		})
	}, "out", "target")

	// catching
	m.Add("__wbg_search", func(ctx context.Context, out, h uint32) {
		b.catch(ctx, "__wbg_search", func() (uint32, error) {
			v, err := cast[searcher](b.value(h), "Location or URL")
			if err != nil {
				return 0, err
			}
			return 0, b.strings.WriteString(ctx, out, v.Search())
		})
	}, "out", "target")

	m.Add("__wbg_searchParams", func(h uint32) uint32 {
		return b.add(mustCast[*webapi.URL](b.value(h), "URL").SearchParams())
	}, "url")

	// catching
	m.Add("__wbg_new_URL", func(ctx context.Context, ptr, length uint32) uint32 {
		return b.catch(ctx, "__wbg_new_URL", func() (uint32, error) {
			raw, err := b.stringArg(ptr, length)
			if err != nil {
				return 0, err
			}
			u, err := webapi.NewURL(raw)
			if err != nil {
				return 0, err
			}
			return b.add(u), nil
		})
	}, "ptr", "len")

	// catching
	m.Add("__wbg_new_URLSearchParams", func(ctx context.Context, ptr, length uint32) uint32 {
		return b.catch(ctx, "__wbg_new_URLSearchParams", func() (uint32, error) {
			query, err := b.stringArg(ptr, length)
			if err != nil {
				return 0, err
			}
			return b.add(webapi.ParseSearchParams(query)), nil
		})
	}, "ptr", "len")

	m.Add("__wbg_URLSearchParams_get", func(ctx context.Context, out, h, ptr, length uint32) {
		params := mustCast[*webapi.URLSearchParams](b.value(h), "URLSearchParams")
		v, ok := params.Get(b.mustString(ptr, length))
		mustDo(b.strings.WriteOptionalString(ctx, out, v, ok))
	}, "out", "params", "ptr", "len")

	m.Add("__wbg_URLSearchParams_set", func(h, namePtr, nameLen, valuePtr, valueLen uint32) {
		params := mustCast[*webapi.URLSearchParams](b.value(h), "URLSearchParams")
		params.Set(b.mustString(namePtr, nameLen), b.mustString(valuePtr, valueLen))
	}, "params", "name_ptr", "name_len", "value_ptr", "value_len")

	// catching; a zero url pointer means no url argument.
	m.Add("__wbg_pushState", func(ctx context.Context, h, state, titlePtr, titleLen, urlPtr, urlLen uint32) {
		b.catch(ctx, "__wbg_pushState", func() (uint32, error) {
			hist, err := cast[*webapi.History](b.value(h), "History")
			if err != nil {
				return 0, err
			}
			title, err := b.stringArg(titlePtr, titleLen)
			if err != nil {
				return 0, err
			}
			url := ""
			if urlPtr != 0 {
				if url, err = b.stringArg(urlPtr, urlLen); err != nil {
					return 0, err
				}
			}
			return 0, hist.PushState(b.value(state), title, url)
		})
	}, "history", "state", "title_ptr", "title_len", "url_ptr", "url_len")
}
