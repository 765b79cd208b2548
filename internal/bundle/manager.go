package bundle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/woxQAQ/bindgen-host/internal/bindgen"
	"github.com/woxQAQ/bindgen-host/internal/config"
)

// Manager manages bundle discovery and the boundaries started from them.
type Manager struct {
	cfg        *config.RunnerConfig
	loader     *Loader
	registry   *Registry
	registerer prometheus.Registerer
	logger     *zap.Logger

	mu      sync.RWMutex
	loaded  bool
	running []*bindgen.Boundary
}

// NewManager creates a new bundle manager. Boundary metrics are registered
// on reg with a bundle label; a nil reg uses a private registry.
func NewManager(cfg *config.RunnerConfig, reg prometheus.Registerer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Manager{
		cfg:        cfg,
		loader:     NewLoader(cfg.Boundary.Fetch.MaxModuleBytes, logger),
		registry:   NewRegistry(logger),
		registerer: reg,
		logger:     logger.With(zap.String("component", "bundle-manager")),
	}
}

// LoadAll discovers and registers all bundles from configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("bundles already loaded")
	}

	m.logger.Info("Loading bundles",
		zap.Strings("paths", m.cfg.BundlePaths),
	)

	bundles, err := m.loader.DiscoverBundles(m.cfg.BundlePaths)
	if err != nil {
		var none *NoBundlesFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No bundles found in configured paths",
				zap.Strings("paths", m.cfg.BundlePaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	for _, bundle := range bundles {
		if err := m.registry.Register(bundle); err != nil {
			m.logger.Error("Failed to register bundle",
				zap.String("name", bundle.Manifest.Name),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Bundles loaded successfully",
		zap.Int("count", m.registry.Count()),
	)

	return nil
}

// GetBundle retrieves a bundle by name.
func (m *Manager) GetBundle(name string) (*Bundle, error) {
	bundle, ok := m.registry.Get(name)
	if !ok {
		return nil, &BundleNotFoundError{BundleName: name}
	}
	return bundle, nil
}

// Start creates a boundary for the named bundle and runs the guest's start
// routine in it.
func (m *Manager) Start(ctx context.Context, name string) (*bindgen.Boundary, error) {
	bundle, err := m.GetBundle(name)
	if err != nil {
		return nil, err
	}

	opts := m.options(name, bundle.Manifest.Linkage())
	opts.Config.Window = bundle.Window(opts.Config.Window)
	return m.start(ctx, name, opts, bindgen.FromBytes(name, bundle.Module))
}

// StartURL fetches a module by URL and starts it with the default linkage.
func (m *Manager) StartURL(ctx context.Context, url string) (*bindgen.Boundary, error) {
	return m.start(ctx, url, m.options(url, bindgen.Linkage{}), bindgen.FromURL(url))
}

func (m *Manager) options(name string, linkage bindgen.Linkage) bindgen.Options {
	return bindgen.Options{
		Config:     m.cfg.Boundary,
		Linkage:    linkage,
		Logger:     m.logger.With(zap.String("bundle", name)),
		Registerer: prometheus.WrapRegistererWith(prometheus.Labels{"bundle": name}, m.registerer),
	}
}

func (m *Manager) start(ctx context.Context, name string, opts bindgen.Options, src bindgen.Source) (*bindgen.Boundary, error) {
	b, err := bindgen.New(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create boundary for %s: %w", name, err)
	}

	if _, err := b.Init(ctx, src); err != nil {
		_ = b.Close(ctx)
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	m.mu.Lock()
	m.running = append(m.running, b)
	m.mu.Unlock()

	m.logger.Info("Guest started",
		zap.String("name", name),
		zap.String("boundary", b.ID()),
	)
	return b, nil
}

// Running returns the boundaries started so far.
func (m *Manager) Running() []*bindgen.Boundary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*bindgen.Boundary, len(m.running))
	copy(out, m.running)
	return out
}

// Shutdown closes every started boundary.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down bundle manager")

	m.mu.Lock()
	running := m.running
	m.running = nil
	m.mu.Unlock()

	var errs []error
	for _, b := range running {
		if err := b.Close(ctx); err != nil {
			m.logger.Error("Failed to close boundary",
				zap.String("boundary", b.ID()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}

	m.logger.Info("Bundle manager shutdown complete")
	return errors.Join(errs...)
}

// Registry returns the bundle registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether bundles have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
