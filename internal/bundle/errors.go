package bundle

import (
	"errors"
	"fmt"
)

var (
	// ErrNoManifest marks a directory without a readable manifest.yaml.
	ErrNoManifest = errors.New("no manifest.yaml")

	// ErrNotWasm marks a module file whose content is not a Wasm binary.
	ErrNotWasm = errors.New("not a Wasm module")

	// ErrModuleTooLarge marks a module over the configured size limit.
	ErrModuleTooLarge = errors.New("module exceeds size limit")
)

// ManifestError reports a manifest that cannot be read, decoded or
// accepted. Field names the offending key when validation failed.
type ManifestError struct {
	Path  string
	Field string
	Err   error
}

func (e *ManifestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest %s: %s: %v", e.Path, e.Field, e.Err)
	}
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// ModuleError reports a bundle whose module file cannot be used.
// Detected holds the sniffed MIME type for files that are not Wasm; Size
// and Limit are set when the decompressed module is too large.
type ModuleError struct {
	Bundle   string
	Path     string
	Detected string
	Size     int64
	Limit    int64
	Err      error
}

func (e *ModuleError) Error() string {
	switch {
	case e.Detected != "":
		return fmt.Sprintf("bundle '%s': %s is %s, not application/wasm", e.Bundle, e.Path, e.Detected)
	case e.Limit > 0:
		return fmt.Sprintf("bundle '%s': %s is %d bytes, limit is %d", e.Bundle, e.Path, e.Size, e.Limit)
	}
	return fmt.Sprintf("bundle '%s': module %s: %v", e.Bundle, e.Path, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// BundleNotFoundError occurs when a bundle is not in the registry.
type BundleNotFoundError struct {
	BundleName string
}

func (e *BundleNotFoundError) Error() string {
	return fmt.Sprintf("bundle '%s' not found", e.BundleName)
}

// BundleAlreadyRegisteredError occurs when registering a duplicate name.
type BundleAlreadyRegisteredError struct {
	BundleName string
}

func (e *BundleAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("bundle '%s' is already registered", e.BundleName)
}

// NoBundlesFoundError occurs when the configured paths hold no loadable
// bundle. Failures carries the error of every directory that was tried.
type NoBundlesFoundError struct {
	Paths    []string
	Failures []error
}

func (e *NoBundlesFoundError) Error() string {
	if len(e.Failures) > 0 {
		return fmt.Sprintf("no bundles found in paths: %v (%d failed to load)", e.Paths, len(e.Failures))
	}
	return fmt.Sprintf("no bundles found in paths: %v", e.Paths)
}

func (e *NoBundlesFoundError) Unwrap() []error {
	return e.Failures
}
