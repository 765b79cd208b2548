package wasm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime *Runtime
	logger  *zap.Logger

	// Host modules already instantiated in the runtime, by name.
	hosts map[string]api.Module
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, logger *zap.Logger) *InstanceManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstanceManager{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-instance")),
		hosts:   make(map[string]api.Module),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Compiled module to instantiate.
	Module *CompiledModule

	// Instance ID (if empty, generates UUID).
	InstanceID string

	// Host functions the guest imports.
	Host *HostModule
}

// Instance represents an instantiated Wasm module.
type Instance struct {
	module  api.Module
	runtime *Runtime

	ID        string
	Name      string
	CreatedAt int64

	// Exported functions, looked up lazily.
	exports map[string]api.Function
}

// Instantiate creates a new instance from a compiled module.
// The host module is instantiated first, once per runtime.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	if config.Module == nil {
		return nil, &ModuleNotFoundError{ModuleName: ""}
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	m.logger.Debug("Instantiating Wasm module",
		zap.String("module", config.Module.Name),
		zap.String("instance_id", instanceID),
	)

	if config.Host != nil {
		if err := m.ensureHost(ctx, config.Host); err != nil {
			return nil, &InstantiationError{
				ModuleName: config.Module.Name,
				InstanceID: instanceID,
				Err:        err,
			}
		}
	}

	// Start functions are left to the caller so it can wire memory first.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions()

	module, err := m.runtime.runtime.InstantiateModule(ctx, config.Module.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.Module.Name,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	instance := &Instance{
		module:    module,
		runtime:   m.runtime,
		ID:        instanceID,
		Name:      config.Module.Name,
		CreatedAt: time.Now().Unix(),
		exports:   make(map[string]api.Function),
	}

	if err := m.runtime.StoreInstance(instanceID, module); err != nil {
		_ = module.Close(ctx)
		return nil, err
	}

	m.logger.Debug("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(config.Module.Module.ExportedFunctions())),
	)

	return instance, nil
}

func (m *InstanceManager) ensureHost(ctx context.Context, host *HostModule) error {
	if _, ok := m.hosts[host.Name()]; ok {
		return nil
	}

	builder := m.runtime.runtime.NewHostModuleBuilder(host.Name())
	host.Export(builder)

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("failed to instantiate host module %s: %w", host.Name(), err)
	}
	m.hosts[host.Name()] = mod
	return nil
}

// Module returns the wazero module.
func (i *Instance) Module() api.Module {
	return i.module
}

// Memory returns the guest's exported memory, or nil.
func (i *Instance) Memory() api.Memory {
	return i.module.Memory()
}

// Function returns an exported function, or nil when absent.
func (i *Instance) Function(name string) api.Function {
	if fn, ok := i.exports[name]; ok {
		return fn
	}
	fn := i.module.ExportedFunction(name)
	if fn != nil {
		i.exports[name] = fn
	}
	return fn
}

// RequireFunction is Function that fails when the export is missing.
func (i *Instance) RequireFunction(name string) (api.Function, error) {
	fn := i.Function(name)
	if fn == nil {
		return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
	}
	return fn, nil
}

// Global returns an exported global, or nil.
func (i *Instance) Global(name string) api.Global {
	return i.module.ExportedGlobal(name)
}

// Close closes the instance and releases resources.
func (i *Instance) Close(ctx context.Context) error {
	i.runtime.DeleteInstance(i.ID)
	return i.module.Close(ctx)
}
