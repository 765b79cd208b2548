package webapi

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// DefaultURL is the location of a window with no configured URL.
const DefaultURL = "http://localhost/"

// WindowConfig describes the simulated browsing context.
type WindowConfig struct {
	URL       string   `mapstructure:"url"`
	Document  string   `mapstructure:"document"`
	Viewport  Viewport `mapstructure:"viewport"`
	FrameRate float64  `mapstructure:"frame_rate"`
}

// DefaultWindowConfig returns sensible defaults.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		URL:       DefaultURL,
		Viewport:  Viewport{Width: 1280, Height: 720},
		FrameRate: DefaultFrameRate,
	}
}

// Window is the global object a guest sees.
type Window struct {
	document    *Document
	location    *Location
	history     *History
	crypto      *Crypto
	performance *Performance
	console     *Console
	loop        *Loop
	logger      *zap.Logger
}

// NewWindow builds a window with its document, location and event loop.
func NewWindow(cfg WindowConfig, logger *zap.Logger) (*Window, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}

	u, err := NewURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	doc, err := NewDocument(cfg.Document, cfg.Viewport)
	if err != nil {
		return nil, err
	}

	loop := NewLoop(logger, cfg.FrameRate)
	location := &Location{url: u}
	w := &Window{
		document:    doc,
		location:    location,
		history:     &History{location: location, entries: []HistoryEntry{{URL: u.Href()}}},
		crypto:      &Crypto{},
		performance: &Performance{loop: loop},
		console:     NewConsole(logger, 0),
		loop:        loop,
		logger:      logger,
	}
	doc.now = loop.Now
	doc.report = func(err error) { loop.onError(err) }
	return w, nil
}

// Document returns window.document.
func (w *Window) Document() *Document { return w.document }

// Location returns window.location.
func (w *Window) Location() *Location { return w.location }

// History returns window.history.
func (w *Window) History() *History { return w.history }

// Crypto returns window.crypto.
func (w *Window) Crypto() *Crypto { return w.crypto }

// Performance returns window.performance.
func (w *Window) Performance() *Performance { return w.performance }

// Console returns the console.
func (w *Window) Console() *Console { return w.console }

// Loop returns the event loop.
func (w *Window) Loop() *Loop { return w.loop }

// SetTimeout schedules cb after ms milliseconds.
func (w *Window) SetTimeout(cb Callable, ms int32, args ...any) int {
	return w.loop.SetTimeout(cb, time.Duration(ms)*time.Millisecond, args...)
}

// ClearTimeout cancels a timer.
func (w *Window) ClearTimeout(id int) {
	w.loop.ClearTimeout(id)
}

// RequestAnimationFrame schedules cb for the next frame.
func (w *Window) RequestAnimationFrame(cb Callable) int {
	return w.loop.RequestAnimationFrame(cb)
}

// CancelAnimationFrame cancels a frame request.
func (w *Window) CancelAnimationFrame(id int) {
	w.loop.CancelAnimationFrame(id)
}

// QueueMicrotask schedules cb as a microtask.
func (w *Window) QueueMicrotask(cb Callable) {
	w.loop.QueueMicrotask(cb)
}

// Property implements PropertyGetter.
func (w *Window) Property(name string) (any, bool) {
	switch name {
	case "window", "self", "globalThis", "frames":
		return w, true
	case "document":
		return w.document, true
	case "location":
		return w.location, true
	case "history":
		return w.history, true
	case "crypto":
		return w.crypto, true
	case "performance":
		return w.performance, true
	case "console":
		return w.console, true
	case "queueMicrotask":
		return Func(func(_ context.Context, args ...any) (any, error) {
			cb, ok := Arg(args, 0).(Callable)
			if !ok {
				return nil, Errorf(TypeErrorName, "Failed to execute 'queueMicrotask' on 'Window': parameter 1 is not of type 'Function'.")
			}
			w.QueueMicrotask(cb)
			return abi.Undefined, nil
		}), true
	}
	return nil, false
}

// ConstructorName names the object for diagnostics.
func (w *Window) ConstructorName() string {
	return "Window"
}

// Performance is the window.performance object.
type Performance struct {
	loop *Loop
}

// Now returns milliseconds since the time origin.
func (p *Performance) Now() float64 {
	return p.loop.Now()
}

// ConstructorName names the object for diagnostics.
func (p *Performance) ConstructorName() string {
	return "Performance"
}

// Function is a host function compiled from source text. Only the global
// lookup idiom "return this" is supported; anything else throws when called.
type Function struct {
	window *Window
	body   string
}

// NewFunction implements new Function(body).
func (w *Window) NewFunction(body string) *Function {
	return &Function{window: w, body: body}
}

// Name implements the diagnostic name lookup.
func (f *Function) Name() string {
	return "anonymous"
}

// Call implements Callable with an undefined receiver.
func (f *Function) Call(ctx context.Context, args ...any) (any, error) {
	return f.CallWith(ctx, abi.Undefined, args...)
}

// CallWith implements ThisCallable. In sloppy mode an undefined receiver
// is the global object.
func (f *Function) CallWith(_ context.Context, this any, _ ...any) (any, error) {
	body := strings.TrimSuffix(strings.TrimSpace(f.body), ";")
	if strings.TrimSpace(body) != "return this" {
		return nil, Errorf(NotSupportedErrorName, "dynamic code evaluation is not supported")
	}
	if abi.IsUndefined(this) || this == nil {
		return f.window, nil
	}
	return this, nil
}
