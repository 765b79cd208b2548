// Package bundle discovers guest bundles on disk and starts them.
//
// A bundle is a directory holding manifest.yaml, the guest module and an
// optional initial HTML document.
package bundle

import (
	"time"

	"github.com/woxQAQ/bindgen-host/internal/webapi"
)

// Bundle represents a loaded bundle with its manifest and module bytes.
type Bundle struct {
	// Manifest is the parsed bundle metadata
	Manifest *Manifest

	// Module holds the decompressed Wasm bytes
	Module []byte

	// Document is the initial HTML markup, empty for a blank document
	Document string

	// LoadedAt is the timestamp when the bundle was loaded
	LoadedAt time.Time
}

// Name returns the bundle name.
func (b *Bundle) Name() string {
	return b.Manifest.Name
}

// Version returns the bundle version.
func (b *Bundle) Version() string {
	return b.Manifest.Version
}

// Window applies the bundle's window overrides to base.
func (b *Bundle) Window(base webapi.WindowConfig) webapi.WindowConfig {
	w := b.Manifest.Window
	if w.URL != "" {
		base.URL = w.URL
	}
	if b.Document != "" {
		base.Document = b.Document
	}
	if w.Width > 0 {
		base.Viewport.Width = w.Width
	}
	if w.Height > 0 {
		base.Viewport.Height = w.Height
	}
	return base
}
