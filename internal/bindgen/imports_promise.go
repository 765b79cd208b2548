package bindgen

import (
	"context"

	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

func (b *Boundary) registerPromiseImports(m *wasm.HostModule) {
	// The executor is a stack closure the guest lends only for this call.
	m.Add("__wbg_new_Promise", func(ctx context.Context, a, aux uint32) uint32 {
		executor := b.borrowedClosure(a, aux, abi.ShapeInvoke2, b.guest.names.PromiseAdapter)
		defer executor.revoke()
		return b.add(webapi.RunPromise(ctx, b.window.Loop(), executor))
	}, "a", "b")

	m.Add("__wbg_Promise_resolve", func(h uint32) uint32 {
		return b.add(webapi.ResolvedPromise(b.window.Loop(), b.value(h)))
	}, "value")

	m.Add("__wbg_then", func(p, onFulfilled uint32) uint32 {
		promise := mustCast[*webapi.Promise](b.value(p), "Promise")
		return b.add(promise.Then(b.value(onFulfilled), nil))
	}, "promise", "on_fulfilled")

	m.Add("__wbg_then2", func(p, onFulfilled, onRejected uint32) uint32 {
		promise := mustCast[*webapi.Promise](b.value(p), "Promise")
		return b.add(promise.Then(b.value(onFulfilled), b.value(onRejected)))
	}, "promise", "on_fulfilled", "on_rejected")
}
