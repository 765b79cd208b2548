// Package bindgen is the host side of the bindgen calling convention.
//
// A Boundary owns everything one guest instance shares with its host: the
// handle table, the memory view cache, the transcoder, the error channel and
// the import table registered as module "wbg". Boundaries share nothing, so
// several guests can run in one process.
package bindgen

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/woxQAQ/bindgen-host/internal/heap"
	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// Config holds boundary configuration.
type Config struct {
	Runtime wasm.RuntimeConfig  `mapstructure:"wasm"`
	Fetch   wasm.FetchConfig    `mapstructure:"fetch"`
	Window  webapi.WindowConfig `mapstructure:"window"`

	// Maximum number of handle table slots. Zero selects heap.DefaultCapacity.
	HeapCapacity int `mapstructure:"heap_capacity"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Runtime:      *wasm.DefaultRuntimeConfig(),
		Fetch:        wasm.DefaultFetchConfig(),
		Window:       webapi.DefaultWindowConfig(),
		HeapCapacity: heap.DefaultCapacity,
	}
}

// Linkage adapts the boundary to one toolchain build of a guest.
type Linkage struct {
	// Export names, defaults from pkg/abi.
	Exports ExportNames

	// Import aliases: generated name -> canonical import name.
	Aliases map[string]string

	// Generated closure wrappers with fixed destructors.
	Wrappers []ClosureWrapper
}

// Options configures New.
type Options struct {
	Config  Config
	Linkage Linkage
	Logger  *zap.Logger

	// Registerer receives the boundary metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
}

// Boundary connects one guest module to its host environment.
type Boundary struct {
	id     string
	logger *zap.Logger
	config Config

	runtime   *wasm.Runtime
	loader    *wasm.ModuleLoader
	fetcher   *wasm.Fetcher
	instances *wasm.InstanceManager
	host      *wasm.HostModule

	heap    *heap.Table
	mem     *wasm.Memory
	strings *Transcoder
	exn     *ErrorChannel
	window  *webapi.Window
	metrics *Metrics
	guest   *guest

	memoryObject *guestMemory

	state    State
	initErr  error
	instance *wasm.Instance
}

// New creates a boundary with its own runtime and import table.
func New(ctx context.Context, opts Options) (*Boundary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	cfg := opts.Config

	id := uuid.NewString()
	logger = logger.With(zap.String("component", "bindgen"), zap.String("boundary", id))

	runtimeConfig := cfg.Runtime
	runtime, err := wasm.NewRuntime(ctx, logger, &runtimeConfig)
	if err != nil {
		return nil, err
	}

	window, err := webapi.NewWindow(cfg.Window, logger)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	table := heap.New(cfg.HeapCapacity)
	loader := wasm.NewModuleLoader(runtime, logger)
	if cfg.Fetch.MaxModuleBytes > 0 {
		loader = loader.WithMaxBytes(cfg.Fetch.MaxModuleBytes)
	}

	b := &Boundary{
		id:        id,
		logger:    logger,
		config:    cfg,
		runtime:   runtime,
		loader:    loader,
		fetcher:   wasm.NewFetcher(cfg.Fetch, logger),
		instances: wasm.NewInstanceManager(runtime, logger),
		heap:      table,
		mem:       wasm.NewMemory(nil),
		exn:       NewErrorChannel(table, logger),
		window:    window,
	}
	b.metrics = NewMetrics(reg, id, func() float64 { return float64(table.Len()) })
	b.guest = newGuest(b, opts.Linkage.Exports.WithDefaults())
	b.strings = NewTranscoder(b.mem, b.guest, table)
	b.memoryObject = &guestMemory{mem: b.mem}

	b.host = wasm.NewHostModule(abi.ImportModule)
	b.registerImports(b.host)
	if err := b.link(opts.Linkage); err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}

	logger.Debug("Boundary created",
		zap.Int("imports", len(b.host.Names())),
		zap.Int("heap_capacity", table.Limit()),
		zap.Int("heap_slots", table.Cap()),
	)
	return b, nil
}

// link applies the toolchain-specific import names.
func (b *Boundary) link(l Linkage) error {
	for _, w := range l.Wrappers {
		if w.Import == "" || w.Adapter == "" {
			return fmt.Errorf("closure wrapper %q needs an import and an adapter name", w.Import)
		}
		b.addClosureWrapper(b.host, w)
	}
	for alias, canonical := range l.Aliases {
		if err := b.host.Alias(alias, canonical); err != nil {
			return fmt.Errorf("failed to alias import %s: %w", alias, err)
		}
	}
	return nil
}

// ID returns the boundary id.
func (b *Boundary) ID() string { return b.id }

// Window returns the host window the guest sees.
func (b *Boundary) Window() *webapi.Window { return b.window }

// Heap returns the handle table.
func (b *Boundary) Heap() *heap.Table { return b.heap }

// Memory returns the memory view cache.
func (b *Boundary) Memory() *wasm.Memory { return b.mem }

// Transcoder returns the string and byte transcoder.
func (b *Boundary) Transcoder() *Transcoder { return b.strings }

// Errors returns the error channel.
func (b *Boundary) Errors() *ErrorChannel { return b.exn }

// Metrics returns the boundary metrics.
func (b *Boundary) Metrics() *Metrics { return b.metrics }

// Imports lists the import names the guest may link against.
func (b *Boundary) Imports() []string { return b.host.Names() }

// Instance returns the running instance, or nil.
func (b *Boundary) Instance() *wasm.Instance { return b.instance }

// Call invokes a guest export by name.
func (b *Boundary) Call(ctx context.Context, export string, params ...uint64) ([]uint64, error) {
	if b.state != StateRunning {
		return nil, ErrNotRunning
	}
	return b.guest.call(ctx, export, params...)
}

// Run drives the event loop until no work is pending or ctx is done. It
// stops with the AbortError if the guest instance dies along the way.
func (b *Boundary) Run(ctx context.Context) error {
	if b.state != StateRunning {
		return ErrNotRunning
	}
	loop := b.window.Loop()
	for {
		more, err := loop.Tick(ctx)
		if err != nil {
			return err
		}
		if b.state == StateFailed {
			return b.initErr
		}
		if !more {
			return nil
		}
	}
}

// Close releases the runtime and every instance in it.
func (b *Boundary) Close(ctx context.Context) error {
	b.logger.Debug("Closing boundary")
	return b.runtime.Close(ctx)
}

// fail routes a host exception from a catching import to the error channel.
// If the guest's own exception store traps, the import traps with it.
func (b *Boundary) fail(ctx context.Context, name string, err error) {
	b.metrics.ImportExceptions.WithLabelValues(name).Inc()
	b.logger.Debug("Import raised an exception",
		zap.String("import", name),
		zap.Error(err),
	)
	if serr := b.exn.Capture(ctx, err); serr != nil {
		panic(serr)
	}
}

// catch runs a catching import body: errors are captured and the guest
// sees zero.
func (b *Boundary) catch(ctx context.Context, name string, fn func() (uint32, error)) uint32 {
	v, err := fn()
	if err != nil {
		b.fail(ctx, name, err)
		return 0
	}
	return v
}

// guestMemory is the host value for the guest's memory object.
type guestMemory struct {
	mem *wasm.Memory
}

// Buffer implements webapi.BufferHolder. The buffer always reflects the
// current memory, so byte views over it survive growth.
func (g *guestMemory) Buffer() webapi.Buffer {
	return memoryBuffer{mem: g.mem}
}

// ConstructorName names the object for diagnostics.
func (g *guestMemory) ConstructorName() string {
	return "Memory"
}

type memoryBuffer struct {
	mem *wasm.Memory
}

func (m memoryBuffer) Bytes() []byte {
	return m.mem.Bytes()
}

func (m memoryBuffer) ConstructorName() string {
	return "ArrayBuffer"
}
