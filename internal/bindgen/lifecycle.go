package bindgen

import (
	"context"
	"net/http"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/bindgen-host/internal/wasm"
)

// State is the lifecycle state of a boundary.
type State int

const (
	StateUninitialized State = iota
	StateInstantiating
	StateRunning
	// StateFailed is terminal: the start routine failed after the guest
	// may already have registered callbacks, or the instance was closed
	// mid-call.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInstantiating:
		return "instantiating"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Source supplies a guest module to Init.
type Source interface {
	compile(ctx context.Context, b *Boundary) (*wasm.CompiledModule, error)
}

// SyncSource is a Source that needs no I/O, accepted by InitSync.
type SyncSource interface {
	Source
	sync()
}

type urlSource struct{ url string }

// FromURL fetches the module from url.
func FromURL(url string) Source { return urlSource{url: url} }

func (s urlSource) compile(ctx context.Context, b *Boundary) (*wasm.CompiledModule, error) {
	resp, err := b.fetcher.Get(ctx, s.url)
	if err != nil {
		return nil, err
	}
	return b.compileResponse(ctx, s.url, resp)
}

type requestSource struct{ req *http.Request }

// FromRequest sends req and compiles the response.
func FromRequest(req *http.Request) Source { return requestSource{req: req} }

func (s requestSource) compile(ctx context.Context, b *Boundary) (*wasm.CompiledModule, error) {
	resp, err := b.fetcher.Do(ctx, s.req)
	if err != nil {
		return nil, err
	}
	return b.compileResponse(ctx, s.req.URL.String(), resp)
}

type responseSource struct{ resp *http.Response }

// FromResponse compiles an already received response. Its body is closed.
func FromResponse(resp *http.Response) Source { return responseSource{resp: resp} }

func (s responseSource) compile(ctx context.Context, b *Boundary) (*wasm.CompiledModule, error) {
	name := "response"
	if s.resp.Request != nil && s.resp.Request.URL != nil {
		name = s.resp.Request.URL.String()
	}
	return b.compileResponse(ctx, name, s.resp)
}

type fileSource struct{ path string }

// FromFile loads the module from a .wasm or .wasm.gz file.
func FromFile(path string) Source { return fileSource{path: path} }

func (s fileSource) compile(ctx context.Context, b *Boundary) (*wasm.CompiledModule, error) {
	return b.loader.LoadModuleFromFile(ctx, s.path)
}

type bytesSource struct {
	name string
	data []byte
}

// FromBytes compiles raw module bytes.
func FromBytes(name string, data []byte) SyncSource { return bytesSource{name: name, data: data} }

func (s bytesSource) compile(ctx context.Context, b *Boundary) (*wasm.CompiledModule, error) {
	return b.loader.Compile(ctx, s.name, s.data)
}

func (bytesSource) sync() {}

type compiledSource struct{ module *wasm.CompiledModule }

// FromCompiled instantiates a module compiled by the same boundary runtime.
func FromCompiled(module *wasm.CompiledModule) SyncSource { return compiledSource{module: module} }

func (s compiledSource) compile(context.Context, *Boundary) (*wasm.CompiledModule, error) {
	return s.module, nil
}

func (compiledSource) sync() {}

func (b *Boundary) compileResponse(ctx context.Context, name string, resp *http.Response) (*wasm.CompiledModule, error) {
	compiled, streamed, err := b.loader.CompileResponse(ctx, name, resp)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("Module fetched", zap.String("url", name), zap.Bool("streamed", streamed))
	return compiled, nil
}

// State returns the lifecycle state.
func (b *Boundary) State() State {
	return b.state
}

// Compile compiles a source without instantiating it.
func (b *Boundary) Compile(ctx context.Context, src Source) (*wasm.CompiledModule, error) {
	return src.compile(ctx, b)
}

// Init loads, instantiates and starts the guest. Once running, further
// calls return the running instance without doing anything.
func (b *Boundary) Init(ctx context.Context, src Source) (*wasm.Instance, error) {
	switch b.state {
	case StateRunning:
		return b.instance, nil
	case StateInstantiating:
		return nil, ErrInstantiating
	case StateFailed:
		return nil, b.initErr
	}

	b.state = StateInstantiating
	compiled, err := src.compile(ctx, b)
	if err != nil {
		b.state = StateUninitialized
		return nil, err
	}
	return b.finalize(ctx, compiled)
}

// InitSync is Init restricted to sources that need no network access.
func (b *Boundary) InitSync(ctx context.Context, src SyncSource) (*wasm.Instance, error) {
	if src == nil {
		return nil, ErrAsyncSource
	}
	return b.Init(ctx, src)
}

func (b *Boundary) finalize(ctx context.Context, compiled *wasm.CompiledModule) (*wasm.Instance, error) {
	instance, err := b.instances.Instantiate(ctx, &wasm.InstanceConfig{
		Module:     compiled,
		InstanceID: b.id,
		Host:       b.host,
	})
	if err != nil {
		b.state = StateUninitialized
		return nil, err
	}

	mem, err := b.guest.bind(instance)
	if err != nil {
		_ = instance.Close(ctx)
		b.guest.instance = nil
		b.state = StateUninitialized
		return nil, err
	}
	b.mem.Attach(mem)
	if b.guest.has(b.guest.names.ExnStore) {
		b.exn.Forward(b.guest.exnStore)
	}
	b.instance = instance

	b.logger.Info("Guest instantiated",
		zap.String("module", compiled.Name),
		zap.Uint32("memory_bytes", b.mem.Size()),
	)

	if err := b.guest.start(ctx); err != nil {
		b.state = StateFailed
		b.initErr = &StartError{Err: err}
		b.logger.Error("Guest start routine failed", zap.Error(err))
		return nil, b.initErr
	}
	b.window.Loop().DrainMicrotasks(ctx)

	b.state = StateRunning
	return instance, nil
}

// abort moves the boundary to StateFailed once its instance has been closed
// under it. Later calls see ErrNotRunning and Init returns the AbortError.
func (b *Boundary) abort(export string, err error) {
	if b.state == StateFailed {
		return
	}
	b.state = StateFailed
	b.initErr = &AbortError{Export: export, Err: err}
	b.guest.instance = nil
	b.guest.idle = make(map[string][]api.Function)
	b.logger.Error("Guest instance aborted",
		zap.String("export", export),
		zap.Error(err),
	)
}
