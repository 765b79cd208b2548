package bundle

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoader_LoadBundle_Valid(t *testing.T) {
	dir := writeValidBundle(t, t.TempDir())
	loader := NewLoader(0, zaptest.NewLogger(t))

	bundle, err := loader.LoadBundle(dir)
	require.NoError(t, err)

	assert.Equal(t, "counter", bundle.Name())
	assert.Equal(t, "0.2.0", bundle.Version())
	assert.Equal(t, guestModule(), bundle.Module)
	assert.Equal(t, testDocument, bundle.Document)
	assert.False(t, bundle.LoadedAt.IsZero())
}

func TestLoader_LoadBundle_Gzip(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), "zipped", "name: zipped\nversion: 1.0.0\nwasm:\n  file: guest.wasm.gz\n",
		map[string][]byte{"guest.wasm.gz": gzipBytes(t, guestModule())})

	bundle, err := NewLoader(0, zaptest.NewLogger(t)).LoadBundle(dir)
	require.NoError(t, err)
	assert.Equal(t, guestModule(), bundle.Module)
	assert.Empty(t, bundle.Document)
}

func TestLoader_LoadBundle_NotWasm(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), "fake", "name: fake\nversion: 1.0.0\nwasm:\n  file: guest.wasm\n",
		map[string][]byte{"guest.wasm": []byte("<html>not a module</html>")})

	_, err := NewLoader(0, zaptest.NewLogger(t)).LoadBundle(dir)
	var moduleErr *ModuleError
	require.ErrorAs(t, err, &moduleErr)
	assert.ErrorIs(t, err, ErrNotWasm)
	assert.Equal(t, "fake", moduleErr.Bundle)
	assert.Equal(t, filepath.Join(dir, "guest.wasm"), moduleErr.Path)
	assert.Contains(t, moduleErr.Detected, "text/html")
	assert.Contains(t, err.Error(), "not application/wasm")
}

func TestLoader_LoadBundle_TooLarge(t *testing.T) {
	dir := writeValidBundle(t, t.TempDir())

	_, err := NewLoader(8, zaptest.NewLogger(t)).LoadBundle(dir)
	var moduleErr *ModuleError
	require.ErrorAs(t, err, &moduleErr)
	assert.ErrorIs(t, err, ErrModuleTooLarge)
	assert.Equal(t, int64(len(guestModule())), moduleErr.Size)
	assert.Equal(t, int64(8), moduleErr.Limit)
}

func TestLoader_LoadBundle_ManifestNotFound(t *testing.T) {
	_, err := NewLoader(0, zaptest.NewLogger(t)).LoadBundle(filepath.Join(t.TempDir(), "nonexistent"))
	assert.ErrorIs(t, err, ErrNoManifest)
}

func TestLoader_DiscoverBundles(t *testing.T) {
	root := t.TempDir()
	writeValidBundle(t, root)
	writeBundle(t, root, "broken", "name: [", nil)
	writeBundle(t, root, "empty", "", nil)

	loader := NewLoader(0, zaptest.NewLogger(t))
	bundles, err := loader.DiscoverBundles([]string{root, filepath.Join(root, "missing")})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	assert.Equal(t, "counter", bundles[0].Name())
}

func TestLoader_DiscoverBundles_NoneFound(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "broken", "name: [", nil)

	_, err := NewLoader(0, zaptest.NewLogger(t)).DiscoverBundles([]string{root})
	var none *NoBundlesFoundError
	require.ErrorAs(t, err, &none)
	assert.Equal(t, []string{root}, none.Paths)
	require.Len(t, none.Failures, 1)

	var manifestErr *ManifestError
	assert.ErrorAs(t, err, &manifestErr)
}
