package bindgen

import (
	"context"

	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
)

type selectorScope interface {
	QuerySelector(selector string) (*webapi.Element, error)
}

func (b *Boundary) element(h uint32) *webapi.Element {
	return mustCast[*webapi.Element](b.value(h), "Element")
}

func (b *Boundary) registerDOMImports(m *wasm.HostModule) {
	// catching
	m.Add("__wbg_createElement", func(ctx context.Context, doc, ptr, length uint32) uint32 {
		return b.catch(ctx, "__wbg_createElement", func() (uint32, error) {
			d, err := cast[*webapi.Document](b.value(doc), "Document")
			if err != nil {
				return 0, err
			}
			tag, err := b.stringArg(ptr, length)
			if err != nil {
				return 0, err
			}
			el, err := d.CreateElement(tag)
			if err != nil {
				return 0, err
			}
			return b.add(el), nil
		})
	}, "document", "ptr", "len")

	// catching
	m.Add("__wbg_querySelector", func(ctx context.Context, scope, ptr, length uint32) uint32 {
		return b.catch(ctx, "__wbg_querySelector", func() (uint32, error) {
			s, err := cast[selectorScope](b.value(scope), "Document or Element")
			if err != nil {
				return 0, err
			}
			selector, err := b.stringArg(ptr, length)
			if err != nil {
				return 0, err
			}
			el, err := s.QuerySelector(selector)
			if err != nil {
				return 0, err
			}
			return b.addOptional(el, el != nil), nil
		})
	}, "scope", "ptr", "len")

	m.Add("__wbg_set_className", func(h, ptr, length uint32) {
		b.element(h).SetClassName(b.mustString(ptr, length))
	}, "element", "ptr", "len")

	m.Add("__wbg_clientWidth", func(h uint32) uint32 {
		return uint32(int32(b.element(h).ClientWidth()))
	}, "element")

	m.Add("__wbg_clientHeight", func(h uint32) uint32 {
		return uint32(int32(b.element(h).ClientHeight()))
	}, "element")

	m.Add("__wbg_set_innerHTML", func(h, ptr, length uint32) {
		b.element(h).SetInnerHTML(b.mustString(ptr, length))
	}, "element", "ptr", "len")

	m.Add("__wbg_set_innerText", func(h, ptr, length uint32) {
		b.element(h).SetInnerText(b.mustString(ptr, length))
	}, "element", "ptr", "len")

	// catching
	m.Add("__wbg_setAttribute", func(ctx context.Context, h, namePtr, nameLen, valuePtr, valueLen uint32) {
		b.catch(ctx, "__wbg_setAttribute", func() (uint32, error) {
			el, err := cast[*webapi.Element](b.value(h), "Element")
			if err != nil {
				return 0, err
			}
			name, err := b.stringArg(namePtr, nameLen)
			if err != nil {
				return 0, err
			}
			value, err := b.stringArg(valuePtr, valueLen)
			if err != nil {
				return 0, err
			}
			return 0, el.SetAttribute(name, value)
		})
	}, "element", "name_ptr", "name_len", "value_ptr", "value_len")

	m.Add("__wbg_getAttribute", func(ctx context.Context, out, h, ptr, length uint32) {
		v, ok := b.element(h).GetAttribute(b.mustString(ptr, length))
		mustDo(b.strings.WriteOptionalString(ctx, out, v, ok))
	}, "out", "element", "ptr", "len")

	m.Add("__wbg_remove", func(h uint32) {
		b.element(h).Remove()
	}, "element")

	for name, tag := range map[string]string{
		"__wbg_instanceof_HtmlButtonElement":   "button",
		"__wbg_instanceof_HtmlTextAreaElement": "textarea",
		"__wbg_instanceof_HtmlDivElement":      "div",
	} {
		tag := tag
		m.Add(name, func(h uint32) uint32 {
			el, ok := b.value(h).(*webapi.Element)
			return boolToI32(ok && el.Is(tag))
		}, "value")
	}

	m.Add("__wbg_set_disabled", func(h, v uint32) {
		b.element(h).SetDisabled(v != 0)
	}, "element", "value")

	m.Add("__wbg_hidden", func(h uint32) uint32 {
		return boolToI32(b.element(h).Hidden())
	}, "element")

	m.Add("__wbg_set_hidden", func(h, v uint32) {
		b.element(h).SetHidden(v != 0)
	}, "element", "value")

	m.Add("__wbg_value", func(ctx context.Context, out, h uint32) {
		mustDo(b.strings.WriteString(ctx, out, b.element(h).Value()))
	}, "out", "element")

	m.Add("__wbg_set_value", func(h, ptr, length uint32) {
		b.element(h).SetValue(b.mustString(ptr, length))
	}, "element", "ptr", "len")

	// catching
	m.Add("__wbg_addEventListener", func(ctx context.Context, h, ptr, length, cb uint32) {
		b.catch(ctx, "__wbg_addEventListener", func() (uint32, error) {
			el, typ, fn, err := b.listenerArgs(h, ptr, length, cb)
			if err != nil {
				return 0, err
			}
			el.AddEventListener(typ, fn)
			return 0, nil
		})
	}, "element", "ptr", "len", "callback")

	// catching
	m.Add("__wbg_removeEventListener", func(ctx context.Context, h, ptr, length, cb uint32) {
		b.catch(ctx, "__wbg_removeEventListener", func() (uint32, error) {
			el, typ, fn, err := b.listenerArgs(h, ptr, length, cb)
			if err != nil {
				return 0, err
			}
			el.RemoveEventListener(typ, fn)
			return 0, nil
		})
	}, "element", "ptr", "len", "callback")

	// catching
	m.Add("__wbg_appendChild", func(ctx context.Context, parent, child uint32) uint32 {
		return b.catch(ctx, "__wbg_appendChild", func() (uint32, error) {
			p, err := cast[*webapi.Element](b.value(parent), "Element")
			if err != nil {
				return 0, err
			}
			c, err := cast[*webapi.Element](b.value(child), "Element")
			if err != nil {
				return 0, err
			}
			out, err := p.AppendChild(c)
			if err != nil {
				return 0, err
			}
			return b.add(out), nil
		})
	}, "parent", "child")

	m.Add("__wbg_click", func(ctx context.Context, h uint32) {
		b.element(h).Click(ctx)
	}, "element")
}

func (b *Boundary) listenerArgs(h, ptr, length, cb uint32) (*webapi.Element, string, webapi.Callable, error) {
	el, err := cast[*webapi.Element](b.value(h), "Element")
	if err != nil {
		return nil, "", nil, err
	}
	typ, err := b.stringArg(ptr, length)
	if err != nil {
		return nil, "", nil, err
	}
	fn, err := cast[webapi.Callable](b.value(cb), "function")
	if err != nil {
		return nil, "", nil, err
	}
	return el, typ, fn, nil
}
