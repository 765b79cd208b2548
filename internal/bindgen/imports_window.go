package bindgen

import (
	"context"

	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
)

func (b *Boundary) registerGlobalImports(m *wasm.HostModule) {
	// catching
	for _, name := range []string{"self", "window", "globalThis", "global"} {
		name := "__wbg_" + name
		m.Add(name, func(ctx context.Context) uint32 {
			return b.catch(ctx, name, func() (uint32, error) {
				return b.add(b.window), nil
			})
		})
	}

	m.Add("__wbg_newnoargs", func(ptr, length uint32) uint32 {
		return b.add(b.window.NewFunction(b.mustString(ptr, length)))
	}, "ptr", "len")

	// catching
	m.Add("__wbg_get", func(ctx context.Context, target, key uint32) uint32 {
		return b.catch(ctx, "__wbg_get", func() (uint32, error) {
			v, err := webapi.Get(b.value(target), b.value(key))
			if err != nil {
				return 0, err
			}
			return b.add(v), nil
		})
	}, "target", "key")

	// catching
	m.Add("__wbg_call0", func(ctx context.Context, fn, this uint32) uint32 {
		return b.catch(ctx, "__wbg_call0", func() (uint32, error) {
			v, err := webapi.Invoke(ctx, b.value(fn), b.value(this))
			if err != nil {
				return 0, err
			}
			return b.add(v), nil
		})
	}, "fn", "this")

	// catching
	m.Add("__wbg_call1", func(ctx context.Context, fn, this, arg uint32) uint32 {
		return b.catch(ctx, "__wbg_call1", func() (uint32, error) {
			v, err := webapi.Invoke(ctx, b.value(fn), b.value(this), b.value(arg))
			if err != nil {
				return 0, err
			}
			return b.add(v), nil
		})
	}, "fn", "this", "arg")

	m.Add("__wbg_queueMicrotask_get", func(h uint32) uint32 {
		v, err := webapi.Get(b.value(h), "queueMicrotask")
		mustDo(err)
		return b.add(v)
	}, "target")

	m.Add("__wbg_queueMicrotask", func(h uint32) {
		b.window.QueueMicrotask(mustCast[webapi.Callable](b.value(h), "function"))
	}, "callback")
}

func (b *Boundary) registerWindowImports(m *wasm.HostModule) {
	m.Add("__wbg_instanceof_Window", func(h uint32) uint32 {
		_, ok := b.value(h).(*webapi.Window)
		return boolToI32(ok)
	}, "value")

	m.Add("__wbg_document", func(h uint32) uint32 {
		w := mustCast[*webapi.Window](b.value(h), "Window")
		doc := w.Document()
		return b.addOptional(doc, doc != nil)
	}, "window")

	m.Add("__wbg_location", func(h uint32) uint32 {
		return b.add(mustCast[*webapi.Window](b.value(h), "Window").Location())
	}, "window")

	// catching
	m.Add("__wbg_history", func(ctx context.Context, h uint32) uint32 {
		return b.catch(ctx, "__wbg_history", func() (uint32, error) {
			w, err := cast[*webapi.Window](b.value(h), "Window")
			if err != nil {
				return 0, err
			}
			return b.add(w.History()), nil
		})
	}, "window")

	m.Add("__wbg_performance", func(h uint32) uint32 {
		w := mustCast[*webapi.Window](b.value(h), "Window")
		perf := w.Performance()
		return b.addOptional(perf, perf != nil)
	}, "window")

	m.Add("__wbg_now", func(h uint32) float64 {
		return mustCast[*webapi.Performance](b.value(h), "Performance").Now()
	}, "performance")

	// catching
	m.Add("__wbg_setTimeout", func(ctx context.Context, win, cb, ms uint32) uint32 {
		return b.catch(ctx, "__wbg_setTimeout", func() (uint32, error) {
			w, err := cast[*webapi.Window](b.value(win), "Window")
			if err != nil {
				return 0, err
			}
			fn, err := cast[webapi.Callable](b.value(cb), "function")
			if err != nil {
				return 0, err
			}
			return uint32(w.SetTimeout(fn, int32(ms))), nil
		})
	}, "window", "callback", "ms")

	m.Add("__wbg_clearTimeout", func(win, id uint32) {
		mustCast[*webapi.Window](b.value(win), "Window").ClearTimeout(int(int32(id)))
	}, "window", "id")

	// catching
	m.Add("__wbg_requestAnimationFrame", func(ctx context.Context, win, cb uint32) uint32 {
		return b.catch(ctx, "__wbg_requestAnimationFrame", func() (uint32, error) {
			w, err := cast[*webapi.Window](b.value(win), "Window")
			if err != nil {
				return 0, err
			}
			fn, err := cast[webapi.Callable](b.value(cb), "function")
			if err != nil {
				return 0, err
			}
			return uint32(w.RequestAnimationFrame(fn)), nil
		})
	}, "window", "callback")

	// catching
	m.Add("__wbg_cancelAnimationFrame", func(ctx context.Context, win, id uint32) {
		b.catch(ctx, "__wbg_cancelAnimationFrame", func() (uint32, error) {
			w, err := cast[*webapi.Window](b.value(win), "Window")
			if err != nil {
				return 0, err
			}
			w.CancelAnimationFrame(int(int32(id)))
			return 0, nil
		})
	}, "window", "id")
}
