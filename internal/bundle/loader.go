package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/woxQAQ/bindgen-host/internal/wasm"
)

// Loader handles loading bundles from disk.
type Loader struct {
	maxBytes int64
	logger   *zap.Logger
}

// NewLoader creates a bundle loader. A positive maxBytes caps the
// decompressed module size.
func NewLoader(maxBytes int64, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		maxBytes: maxBytes,
		logger:   logger.With(zap.String("component", "bundle-loader")),
	}
}

// LoadBundle loads a single bundle from a directory.
func (l *Loader) LoadBundle(dir string) (*Bundle, error) {
	l.logger.Debug("Loading bundle", zap.String("dir", dir))

	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	path := manifest.WasmPath()
	src := &wasm.FileModuleSource{Path: path}
	module, err := src.Bytes()
	if err != nil {
		return nil, &ModuleError{Bundle: manifest.Name, Path: path, Err: err}
	}
	if size := int64(len(module)); l.maxBytes > 0 && size > l.maxBytes {
		return nil, &ModuleError{
			Bundle: manifest.Name,
			Path:   path,
			Size:   size,
			Limit:  l.maxBytes,
			Err:    ErrModuleTooLarge,
		}
	}
	if detected := mimetype.Detect(module); !detected.Is(wasm.WasmContentType) {
		return nil, &ModuleError{
			Bundle:   manifest.Name,
			Path:     path,
			Detected: detected.String(),
			Err:      ErrNotWasm,
		}
	}

	var document string
	if docPath := manifest.DocumentPath(); docPath != "" {
		data, err := os.ReadFile(docPath)
		if err != nil {
			return nil, &ManifestError{Path: manifest.Path(), Field: "window.document", Err: err}
		}
		document = string(data)
	}

	bundle := &Bundle{
		Manifest: manifest,
		Module:   module,
		Document: document,
		LoadedAt: time.Now(),
	}

	l.logger.Info("Bundle loaded",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.Int("size_bytes", len(module)),
		zap.Int("aliases", len(manifest.Aliases)),
		zap.Int("closure_wrappers", len(manifest.Closures)),
	)

	return bundle, nil
}

// DiscoverBundles scans directories for bundles. Each subdirectory with a
// manifest is one bundle; a directory that fails to load is logged and
// skipped.
func (l *Loader) DiscoverBundles(paths []string) ([]*Bundle, error) {
	var bundles []*Bundle
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning bundle directory", zap.String("path", basePath))

		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Bundle path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			bundleDir := filepath.Join(basePath, entry.Name())

			bundle, err := l.LoadBundle(bundleDir)
			if err != nil {
				l.logger.Error("Failed to load bundle",
					zap.String("dir", bundleDir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}

			bundles = append(bundles, bundle)
		}
	}

	if len(bundles) > 0 && len(errs) > 0 {
		l.logger.Warn("Some bundles failed to load",
			zap.Int("loaded", len(bundles)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(bundles) == 0 {
		return nil, &NoBundlesFoundError{Paths: paths, Failures: errs}
	}

	return bundles, nil
}
