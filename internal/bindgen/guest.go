package bindgen

import (
	"context"
	"errors"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/bindgen-host/internal/heap"
	"github.com/woxQAQ/bindgen-host/internal/wasm"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// ExportNames names the guest exports the boundary binds. Empty fields fall
// back to the defaults in pkg/abi.
type ExportNames struct {
	Memory         string `yaml:"memory" mapstructure:"memory"`
	Malloc         string `yaml:"malloc" mapstructure:"malloc"`
	Realloc        string `yaml:"realloc" mapstructure:"realloc"`
	Free           string `yaml:"free" mapstructure:"free"`
	Start          string `yaml:"start" mapstructure:"start"`
	ExnStore       string `yaml:"exn_store" mapstructure:"exn_store"`
	DestroyClosure string `yaml:"destroy_closure" mapstructure:"destroy_closure"`
	PromiseAdapter string `yaml:"promise_adapter" mapstructure:"promise_adapter"`
}

// DefaultExportNames returns the conventional export names.
func DefaultExportNames() ExportNames {
	return ExportNames{
		Memory:         abi.ExportMemory,
		Malloc:         abi.ExportMalloc,
		Realloc:        abi.ExportRealloc,
		Free:           abi.ExportFree,
		Start:          abi.ExportStart,
		ExnStore:       abi.ExportExnStore,
		DestroyClosure: abi.ExportDestroyClosure,
		PromiseAdapter: abi.AdapterExport(abi.ShapeInvoke2),
	}
}

// WithDefaults fills empty names from DefaultExportNames.
func (n ExportNames) WithDefaults() ExportNames {
	d := DefaultExportNames()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&n.Memory, d.Memory)
	fill(&n.Malloc, d.Malloc)
	fill(&n.Realloc, d.Realloc)
	fill(&n.Free, d.Free)
	fill(&n.Start, d.Start)
	fill(&n.ExnStore, d.ExnStore)
	fill(&n.DestroyClosure, d.DestroyClosure)
	fill(&n.PromiseAdapter, d.PromiseAdapter)
	return n
}

// guest calls into the instantiated module.
//
// An api.Function must not be re-entered, and imports routinely call back
// into the guest while a guest call is on the stack, so functions are pooled
// per export and a busy export gets a fresh function.
type guest struct {
	b        *Boundary
	instance *wasm.Instance
	names    ExportNames
	idle     map[string][]api.Function
	depth    int
}

func newGuest(b *Boundary, names ExportNames) *guest {
	return &guest{b: b, names: names, idle: make(map[string][]api.Function)}
}

// bind checks the required exports and returns the guest memory.
func (g *guest) bind(instance *wasm.Instance) (api.Memory, error) {
	mem := instance.Module().ExportedMemory(g.names.Memory)
	if mem == nil {
		return nil, &wasm.FunctionNotFoundError{ModuleName: instance.Name, FunctionName: g.names.Memory}
	}
	for _, name := range []string{g.names.Malloc, g.names.Realloc, g.names.Free} {
		if _, err := instance.RequireFunction(name); err != nil {
			return nil, err
		}
	}
	g.instance = instance
	return mem, nil
}

func (g *guest) has(name string) bool {
	return g.instance != nil && g.instance.Function(name) != nil
}

func (g *guest) acquire(name string) (api.Function, error) {
	if g.instance == nil {
		return nil, ErrNotRunning
	}
	if pool := g.idle[name]; len(pool) > 0 {
		fn := pool[len(pool)-1]
		g.idle[name] = pool[:len(pool)-1]
		return fn, nil
	}
	fn := g.instance.Module().ExportedFunction(name)
	if fn == nil {
		return nil, &wasm.FunctionNotFoundError{ModuleName: g.instance.Name, FunctionName: name}
	}
	return fn, nil
}

// call invokes an export. Memory views are dropped afterwards whatever the
// outcome, since the guest may have grown its memory.
func (g *guest) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, err := g.acquire(name)
	if err != nil {
		return nil, err
	}

	timeout := g.b.runtime.Config().CallTimeout
	callCtx := ctx
	if g.depth == 0 && timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g.depth++
	start := time.Now()
	results, err := fn.Call(callCtx, params...)
	g.depth--
	g.idle[name] = append(g.idle[name], fn)
	g.b.mem.Invalidate()

	g.b.metrics.GuestCalls.WithLabelValues(name).Inc()
	g.b.metrics.GuestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		g.b.metrics.GuestErrors.WithLabelValues(name).Inc()
		if callCtx != ctx && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = &wasm.TimeoutError{Duration: timeout}
		}
		if g.instance != nil && g.instance.Module().IsClosed() {
			g.b.abort(name, err)
		}
		return nil, err
	}
	return results, nil
}

// Malloc implements Allocator.
func (g *guest) Malloc(ctx context.Context, size, align uint32) (uint32, error) {
	res, err := g.call(ctx, g.names.Malloc, api.EncodeU32(size), api.EncodeU32(align))
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

// Realloc implements Allocator.
func (g *guest) Realloc(ctx context.Context, ptr, oldSize, newSize, align uint32) (uint32, error) {
	res, err := g.call(ctx, g.names.Realloc,
		api.EncodeU32(ptr), api.EncodeU32(oldSize), api.EncodeU32(newSize), api.EncodeU32(align))
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

// Free implements Allocator.
func (g *guest) Free(ctx context.Context, ptr, size, align uint32) error {
	_, err := g.call(ctx, g.names.Free, api.EncodeU32(ptr), api.EncodeU32(size), api.EncodeU32(align))
	return err
}

func (g *guest) start(ctx context.Context) error {
	if !g.has(g.names.Start) {
		g.b.logger.Debug("Guest has no start routine", zap.String("export", g.names.Start))
		return nil
	}
	_, err := g.call(ctx, g.names.Start)
	return err
}

func (g *guest) exnStore(ctx context.Context, h heap.Handle) error {
	_, err := g.call(ctx, g.names.ExnStore, api.EncodeU32(h))
	return err
}

func (g *guest) destroyClosure(ctx context.Context, dtor, a, aux uint32) error {
	_, err := g.call(ctx, g.names.DestroyClosure, api.EncodeU32(dtor), api.EncodeU32(a), api.EncodeU32(aux))
	return err
}
