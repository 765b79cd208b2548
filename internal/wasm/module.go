package wasm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// Magic is the header every Wasm binary starts with.
var Magic = []byte{0x00, 'a', 's', 'm'}

// ErrNotWasm is returned when bytes do not carry the Wasm header.
var ErrNotWasm = errors.New("not a WebAssembly binary")

// ModuleLoader handles loading and compiling Wasm modules.
type ModuleLoader struct {
	runtime  *Runtime
	logger   *zap.Logger
	maxBytes int64
}

// NewModuleLoader creates a new module loader.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// WithMaxBytes bounds the size of module bodies read from streams.
func (l *ModuleLoader) WithMaxBytes(n int64) *ModuleLoader {
	l.maxBytes = n
	return l
}

// ModuleSource represents a source for Wasm bytecode.
type ModuleSource interface {
	// Bytes returns the Wasm bytecode.
	Bytes() ([]byte, error)

	// Name returns a name/identifier for this module.
	Name() string

	// Size returns the size in bytes.
	Size() int64
}

// FileModuleSource loads Wasm from a file. Files ending in .gz are
// decompressed.
type FileModuleSource struct {
	Path string
}

// Bytes reads the Wasm file.
func (f *FileModuleSource) Bytes() ([]byte, error) {
	if !strings.HasSuffix(f.Path, ".gz") {
		return os.ReadFile(f.Path)
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// Name returns the file path as the module name.
func (f *FileModuleSource) Name() string {
	return f.Path
}

// Size returns the file size.
func (f *FileModuleSource) Size() int64 {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// MemoryModuleSource loads Wasm from memory.
type MemoryModuleSource struct {
	ModuleName string
	Data       []byte
}

// Bytes returns the Wasm bytecode.
func (m *MemoryModuleSource) Bytes() ([]byte, error) {
	return m.Data, nil
}

// Name returns the module name.
func (m *MemoryModuleSource) Name() string {
	return m.ModuleName
}

// Size returns the data size.
func (m *MemoryModuleSource) Size() int64 {
	return int64(len(m.Data))
}

// LoadModule loads a Wasm module from a source.
// Compiles it if not already cached.
func (l *ModuleLoader) LoadModule(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	if cached, ok := l.runtime.GetCompiledModule(source.Name()); ok {
		l.logger.Debug("Module cache hit",
			zap.String("module", source.Name()),
		)
		return cached, nil
	}

	wasmBytes, err := source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", source.Name(), err)
	}

	compiled, err := l.Compile(ctx, source.Name(), wasmBytes)
	if err != nil {
		return nil, err
	}
	compiled.SizeBytes = source.Size()
	l.runtime.StoreCompiledModule(compiled)
	return compiled, nil
}

// Compile compiles bytes without consulting or filling the cache.
func (l *ModuleLoader) Compile(ctx context.Context, name string, wasmBytes []byte) (*CompiledModule, error) {
	if !bytes.HasPrefix(wasmBytes, Magic) {
		return nil, &CompilationError{ModuleName: name, Err: ErrNotWasm}
	}

	l.logger.Debug("Compiling Wasm module",
		zap.String("module", name),
		zap.Int("size_bytes", len(wasmBytes)),
	)

	startTime := time.Now()

	// Decoding and validation happen here, once per module.
	compiled, err := l.runtime.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &CompilationError{
			ModuleName: name,
			Err:        err,
		}
	}

	l.logger.Debug("Module compiled successfully",
		zap.String("module", name),
		zap.Duration("duration", time.Since(startTime)),
	)

	return &CompiledModule{
		Module:     compiled,
		Name:       name,
		Source:     name,
		SizeBytes:  int64(len(wasmBytes)),
		CompiledAt: time.Now().Unix(),
	}, nil
}

// CompileReader reads a module body and compiles it. The read is bounded by
// the loader's byte limit, and the header is checked before the rest of the
// body is consumed.
func (l *ModuleLoader) CompileReader(ctx context.Context, name string, r io.Reader) (*CompiledModule, error) {
	head := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, &CompilationError{ModuleName: name, Err: fmt.Errorf("%w: %v", ErrNotWasm, err)}
	}
	if !bytes.Equal(head, Magic) {
		return nil, &CompilationError{ModuleName: name, Err: ErrNotWasm}
	}

	body, err := l.readAll(io.MultiReader(bytes.NewReader(head), r))
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", name, err)
	}
	return l.Compile(ctx, name, body)
}

// LoadModuleFromFile is a convenience function for loading from a file path.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, path string) (*CompiledModule, error) {
	source := &FileModuleSource{Path: path}
	return l.LoadModule(ctx, source)
}

// LoadModuleFromMemory loads from a byte slice.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	source := &MemoryModuleSource{ModuleName: name, Data: data}
	return l.LoadModule(ctx, source)
}

func (l *ModuleLoader) readAll(r io.Reader) ([]byte, error) {
	if l.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("module exceeds %d bytes", l.maxBytes)
	}
	return data, nil
}
