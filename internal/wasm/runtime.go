package wasm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Runtime manages one wazero runtime and the modules compiled into it.
//
// Host modules are registered by name inside a runtime, so every boundary
// owns its own Runtime. Compiled code can still be shared between runtimes
// through a CompilationCache.
type Runtime struct {
	runtime wazero.Runtime

	// Compiled module cache (key: module name -> value: *CompiledModule)
	modules sync.Map

	// Active module instances (key: instance ID -> value: closer)
	instances sync.Map
	count     int
	countMu   sync.Mutex

	config *RuntimeConfig
	logger *zap.Logger

	// Set when the cache was opened from CacheDir.
	ownedCache wazero.CompilationCache

	closeOnce sync.Once
	closed    chan struct{}
}

// RuntimeConfig holds runtime configuration.
type RuntimeConfig struct {
	// Memory limit for guest modules in 64KiB pages.
	// Default: 256 pages = 16MB
	MemoryPages uint32 `mapstructure:"memory_pages"`

	// Keep DWARF info for guest stack traces.
	DebugEnabled bool `mapstructure:"debug"`

	// Compilation cache directory. Empty means no persistent cache.
	CacheDir string `mapstructure:"cache_dir"`

	// Maximum number of concurrent instances in this runtime.
	MaxInstances int `mapstructure:"max_instances"`

	// Upper bound on a single call into the guest. Zero disables it.
	CallTimeout time.Duration `mapstructure:"call_timeout"`

	// Cache is an optional compilation cache shared with other runtimes.
	// It takes precedence over CacheDir and is not closed by the runtime.
	Cache wazero.CompilationCache `mapstructure:"-"`
}

// CompiledModule wraps a wazero.CompiledModule with metadata.
type CompiledModule struct {
	Module wazero.CompiledModule

	Name      string
	Source    string // File path, URL or identifier
	SizeBytes int64

	CompiledAt int64
}

// NewRuntime creates and initializes a new wazero runtime.
func NewRuntime(ctx context.Context, logger *zap.Logger, config *RuntimeConfig) (*Runtime, error) {
	if config == nil {
		config = DefaultRuntimeConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithDebugInfoEnabled(config.DebugEnabled)
	if config.MemoryPages > 0 {
		rc = rc.WithMemoryLimitPages(config.MemoryPages)
	}

	var owned wazero.CompilationCache
	switch {
	case config.Cache != nil:
		rc = rc.WithCompilationCache(config.Cache)
	case config.CacheDir != "":
		cache, err := wazero.NewCompilationCacheWithDir(config.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache %s: %w", config.CacheDir, err)
		}
		rc = rc.WithCompilationCache(cache)
		owned = cache
	}

	runtime := &Runtime{
		runtime:    wazero.NewRuntimeWithConfig(ctx, rc),
		config:     config,
		logger:     logger.With(zap.String("component", "wasm-runtime")),
		ownedCache: owned,
		closed:     make(chan struct{}),
	}

	runtime.logger.Debug("Wasm runtime initialized",
		zap.Uint32("memory_pages", config.MemoryPages),
		zap.Bool("debug_enabled", config.DebugEnabled),
		zap.String("cache_dir", config.CacheDir),
		zap.Int("max_instances", config.MaxInstances),
	)

	return runtime, nil
}

// DefaultRuntimeConfig returns sensible defaults.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		MemoryPages:  256, // 16MB
		DebugEnabled: false,
		CacheDir:     "",
		MaxInstances: 100,
	}
}

// Config returns the effective configuration.
func (r *Runtime) Config() *RuntimeConfig {
	return r.config
}

// Engine exposes the underlying wazero runtime.
func (r *Runtime) Engine() wazero.Runtime {
	return r.runtime
}

// Close gracefully shuts down the runtime.
// Safe to call multiple times (idempotent).
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.logger.Debug("Shutting down Wasm runtime")

		r.instances.Range(func(key, value any) bool {
			if inst, ok := value.(interface{ Close(context.Context) error }); ok {
				if closeErr := inst.Close(ctx); closeErr != nil {
					r.logger.Warn("Failed to close instance",
						zap.String("instance_id", key.(string)),
						zap.Error(closeErr),
					)
				}
			}
			return true
		})

		// Closes compiled modules and host modules too.
		err = r.runtime.Close(ctx)
		if r.ownedCache != nil {
			if cacheErr := r.ownedCache.Close(ctx); cacheErr != nil && err == nil {
				err = cacheErr
			}
		}

		close(r.closed)
	})

	return err
}

// GetCompiledModule retrieves a compiled module from cache.
func (r *Runtime) GetCompiledModule(name string) (*CompiledModule, bool) {
	if val, ok := r.modules.Load(name); ok {
		if mod, ok := val.(*CompiledModule); ok {
			return mod, true
		}
	}
	return nil, false
}

// StoreCompiledModule stores a compiled module in cache.
func (r *Runtime) StoreCompiledModule(module *CompiledModule) {
	r.modules.Store(module.Name, module)
}

// GetInstance retrieves an active instance.
func (r *Runtime) GetInstance(instanceID string) (any, bool) {
	return r.instances.Load(instanceID)
}

// StoreInstance stores an active instance.
// It fails once MaxInstances instances are tracked.
func (r *Runtime) StoreInstance(instanceID string, instance any) error {
	r.countMu.Lock()
	defer r.countMu.Unlock()

	if _, exists := r.instances.Load(instanceID); !exists {
		if r.config.MaxInstances > 0 && r.count >= r.config.MaxInstances {
			return &InstanceLimitError{Limit: r.config.MaxInstances}
		}
		r.count++
	}
	r.instances.Store(instanceID, instance)
	return nil
}

// DeleteInstance removes an instance from tracking.
func (r *Runtime) DeleteInstance(instanceID string) {
	r.countMu.Lock()
	defer r.countMu.Unlock()

	if _, loaded := r.instances.LoadAndDelete(instanceID); loaded {
		r.count--
	}
}

// InstanceCount returns the number of tracked instances.
func (r *Runtime) InstanceCount() int {
	r.countMu.Lock()
	defer r.countMu.Unlock()
	return r.count
}

// IsClosed returns whether the runtime has been closed.
func (r *Runtime) IsClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}
