package bindgen

import (
	"context"

	"go.uber.org/zap"

	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
)

func (b *Boundary) registerConsoleImports(m *wasm.HostModule) {
	console := b.window.Console()
	for _, level := range []string{"log", "debug", "info", "warn", "error"} {
		level := level
		m.Add("__wbg_"+level, func(h uint32) {
			console.Log(level, b.value(h))
		}, "value")
	}

	// The guest hands over ownership of the message buffer.
	m.Add("__wbg_error_str", func(ctx context.Context, ptr, length uint32) {
		msg, err := b.strings.CachedString(ptr, length)
		if ptr != 0 {
			if ferr := b.guest.Free(ctx, ptr, length, 1); ferr != nil {
				b.logger.Warn("Failed to free console message", zap.Error(ferr))
			}
		}
		mustDo(err)
		console.Log("error", msg)
	}, "ptr", "len")

	m.Add("__wbg_new_error", func() uint32 {
		return b.add(webapi.NewError(webapi.ErrorName, ""))
	})

	m.Add("__wbg_stack", func(ctx context.Context, out, h uint32) {
		stack := ""
		if e, ok := b.value(h).(*webapi.Error); ok {
			stack = e.Stack
		}
		mustDo(b.strings.WriteString(ctx, out, stack))
	}, "out", "error")
}
