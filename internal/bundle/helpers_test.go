package bundle

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/woxQAQ/bindgen-host/internal/wasm/wasmtest"
	"github.com/woxQAQ/bindgen-host/pkg/abi"
)

// guestModule is a minimal guest whose start routine logs true through a
// hashed import name.
func guestModule() []byte {
	i32 := wasmtest.I32
	m := wasmtest.New()
	log := m.Import(abi.ImportModule, "__wbg_log_9f8e7d", []wasmtest.ValType{i32}, nil)
	m.Memory(1, abi.ExportMemory)
	m.Export(abi.ExportMalloc, m.Func([]wasmtest.ValType{i32, i32}, []wasmtest.ValType{i32}, nil,
		wasmtest.I32Const(1024)))
	m.Export(abi.ExportRealloc, m.Func([]wasmtest.ValType{i32, i32, i32, i32}, []wasmtest.ValType{i32}, nil,
		wasmtest.I32Const(1024)))
	m.Export(abi.ExportFree, m.Func([]wasmtest.ValType{i32, i32, i32}, nil, nil))
	m.Export(abi.ExportStart, m.Func(nil, nil, nil,
		wasmtest.I32Const(int32(abi.HandleTrue)), wasmtest.Call(log)))
	return m.Bytes()
}

const validManifest = `
name: counter
version: 0.2.0
description: click counter
wasm:
  file: counter_bg.wasm
exports:
  malloc: __wbindgen_malloc
aliases:
  __wbg_log_9f8e7d: __wbg_log
closures:
  - import: __wbindgen_closure_wrapper77
    dtor: 5
    adapter: __wbindgen_invoke1
    shape: invoke1
window:
  url: http://localhost:8080/counter/
  document: index.html
  width: 640
  height: 480
`

const testDocument = `<!doctype html><html><body><div id="app"></div></body></html>`

// writeBundle creates dir/name with the given manifest and files.
func writeBundle(t *testing.T, root, name, manifest string, files map[string][]byte) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644))
	}
	for file, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), data, 0o644))
	}
	return dir
}

func writeValidBundle(t *testing.T, root string) string {
	t.Helper()
	return writeBundle(t, root, "counter", validManifest, map[string][]byte{
		"counter_bg.wasm": guestModule(),
		"index.html":      []byte(testDocument),
	})
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}
