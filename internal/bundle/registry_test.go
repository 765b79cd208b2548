package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBundle(name string) *Bundle {
	return &Bundle{Manifest: &Manifest{Name: name, Version: "1.0.0"}}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, r.Register(newBundle("counter")))

	got, ok := r.Get("counter")
	require.True(t, ok)
	assert.Equal(t, "counter", got.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, r.Register(newBundle("counter")))

	err := r.Register(newBundle("counter"))
	var dup *BundleAlreadyRegisteredError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "counter", dup.BundleName)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry(nil)
	for _, name := range []string{"todo", "counter", "editor"} {
		require.NoError(t, r.Register(newBundle(name)))
	}

	var names []string
	for _, b := range r.List() {
		names = append(names, b.Name())
	}
	assert.Equal(t, []string{"counter", "editor", "todo"}, names)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, r.Register(newBundle("counter")))

	r.Unregister("counter")
	r.Unregister("counter")
	assert.Equal(t, 0, r.Count())

	require.NoError(t, r.Register(newBundle("counter")))
	assert.Equal(t, 1, r.Count())
}
