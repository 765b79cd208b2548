package bundle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/bindgen-host/internal/bindgen"
	"github.com/woxQAQ/bindgen-host/internal/config"
	"github.com/woxQAQ/bindgen-host/internal/wasm"
)

func testConfig(paths ...string) *config.RunnerConfig {
	return &config.RunnerConfig{
		BundlePaths: paths,
		Boundary:    bindgen.DefaultConfig(),
	}
}

func TestManager_LoadAllAndStart(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeValidBundle(t, root)

	reg := prometheus.NewRegistry()
	m := NewManager(testConfig(root), reg, zaptest.NewLogger(t))
	assert.False(t, m.IsLoaded())
	require.NoError(t, m.LoadAll(ctx))
	assert.True(t, m.IsLoaded())
	assert.Equal(t, 1, m.Registry().Count())

	b, err := m.Start(ctx, "counter")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(ctx) })
	assert.Equal(t, bindgen.StateRunning, b.State())

	// The start routine logged through the aliased import.
	entries := b.Window().Console().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "true", entries[0].Message)

	// Window overrides from the manifest.
	assert.Equal(t, "http://localhost:8080/counter/", b.Window().Location().Href())
	app, err := b.Window().Document().QuerySelector("#app")
	require.NoError(t, err)
	assert.NotNil(t, app)

	assert.Contains(t, b.Imports(), "__wbindgen_closure_wrapper77")
	assert.Len(t, m.Running(), 1)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestManager_StartTwiceSharesRegistry(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeValidBundle(t, root)

	m := NewManager(testConfig(root), prometheus.NewRegistry(), zaptest.NewLogger(t))
	require.NoError(t, m.LoadAll(ctx))
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	first, err := m.Start(ctx, "counter")
	require.NoError(t, err)
	second, err := m.Start(ctx, "counter")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Len(t, m.Running(), 2)
}

func TestManager_LoadAllTwice(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testConfig(t.TempDir()), nil, zaptest.NewLogger(t))

	// An empty path is not an error.
	require.NoError(t, m.LoadAll(ctx))
	assert.True(t, m.IsLoaded())
	assert.Error(t, m.LoadAll(ctx))
}

func TestManager_StartUnknown(t *testing.T) {
	m := NewManager(testConfig(), nil, zaptest.NewLogger(t))

	_, err := m.Start(context.Background(), "missing")
	var notFound *BundleNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.BundleName)
}

func TestManager_StartURL(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", wasm.WasmContentType)
		_, _ = w.Write(guestModule())
	}))
	defer srv.Close()

	m := NewManager(testConfig(), nil, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	// Without the manifest aliases the hashed log import cannot link.
	_, err := m.StartURL(ctx, srv.URL+"/guest.wasm")
	require.Error(t, err)
	assert.Empty(t, m.Running())
}

func TestManager_Shutdown(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeValidBundle(t, root)

	m := NewManager(testConfig(root), nil, zaptest.NewLogger(t))
	require.NoError(t, m.LoadAll(ctx))
	_, err := m.Start(ctx, "counter")
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(ctx))
	assert.Empty(t, m.Running())
}
