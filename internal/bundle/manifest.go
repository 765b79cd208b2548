package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/bindgen-host/internal/bindgen"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// ManifestFile is the manifest name inside a bundle directory.
const ManifestFile = "manifest.yaml"

// Manifest represents the bundle manifest.yaml structure.
//
// Besides naming the module file it records how the toolchain build links:
// renamed exports, hashed import names and generated closure wrappers.
type Manifest struct {
	Name        string              `yaml:"name"`
	Version     string              `yaml:"version"`
	Description string              `yaml:"description"`
	Wasm        WasmConfig          `yaml:"wasm"`
	Exports     bindgen.ExportNames `yaml:"exports"`
	Aliases     map[string]string   `yaml:"aliases"`
	Closures    []ClosureConfig     `yaml:"closures"`
	Window      WindowConfig        `yaml:"window"`
	Author      string              `yaml:"author"`
	License     string              `yaml:"license"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file"` // .wasm or .wasm.gz
}

// ClosureConfig declares one generated closure wrapper import.
type ClosureConfig struct {
	Import  string `yaml:"import"`
	Dtor    uint32 `yaml:"dtor"`
	Adapter string `yaml:"adapter"`
	Shape   string `yaml:"shape"`
}

// WindowConfig overrides the runner's window for this bundle.
type WindowConfig struct {
	URL      string `yaml:"url"`
	Document string `yaml:"document"` // HTML file relative to the bundle
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestError{
			Path: manifestPath,
			Err:  fmt.Errorf("%w: %w", ErrNoManifest, err),
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return m.invalid("name", "name is required")
	}

	if m.Version == "" {
		return m.invalid("version", "version is required")
	}

	if m.Wasm.File == "" {
		return m.invalid("wasm.file", "wasm.file is required")
	}

	for alias, canonical := range m.Aliases {
		if alias == "" || canonical == "" {
			return m.invalid("aliases", "aliases need both an import name and a canonical name")
		}
	}

	seen := make(map[string]bool, len(m.Closures))
	for i, c := range m.Closures {
		field := fmt.Sprintf("closures[%d]", i)
		if c.Import == "" {
			return m.invalid(field+".import", "import is required")
		}
		if c.Adapter == "" {
			return m.invalid(field+".adapter", "adapter is required")
		}
		if _, ok := abi.ParseShape(c.Shape); !ok {
			return m.invalid(field+".shape",
				fmt.Sprintf("unknown shape: %q (must be one of: invoke0, invoke1, invoke2, return0, return1)", c.Shape))
		}
		if seen[c.Import] {
			return m.invalid(field+".import", fmt.Sprintf("duplicate wrapper import: %s", c.Import))
		}
		seen[c.Import] = true
	}

	if m.Window.Width < 0 || m.Window.Height < 0 {
		return m.invalid("window", "viewport size must not be negative")
	}

	if _, err := os.Stat(m.WasmPath()); err != nil {
		return &ModuleError{Bundle: m.Name, Path: m.WasmPath(), Err: err}
	}

	if m.Window.Document != "" {
		if _, err := os.Stat(m.DocumentPath()); err != nil {
			return m.invalid("window.document", fmt.Sprintf("document not readable: %v", err))
		}
	}

	return nil
}

func (m *Manifest) invalid(field, msg string) error {
	return &ManifestError{Path: m.Path(), Field: field, Err: errors.New(msg)}
}

// Linkage converts the link-time sections into a boundary linkage.
// The manifest must have been validated.
func (m *Manifest) Linkage() bindgen.Linkage {
	l := bindgen.Linkage{
		Exports: m.Exports.WithDefaults(),
		Aliases: make(map[string]string, len(m.Aliases)),
	}
	for alias, canonical := range m.Aliases {
		l.Aliases[alias] = canonical
	}
	for _, c := range m.Closures {
		shape, _ := abi.ParseShape(c.Shape)
		l.Wrappers = append(l.Wrappers, bindgen.ClosureWrapper{
			Import:  c.Import,
			Dtor:    c.Dtor,
			Adapter: c.Adapter,
			Shape:   shape,
		})
	}
	return l
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// DocumentPath returns the path to the initial document, or "".
func (m *Manifest) DocumentPath() string {
	if m.Window.Document == "" {
		return ""
	}
	return filepath.Join(m.dir, m.Window.Document)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
