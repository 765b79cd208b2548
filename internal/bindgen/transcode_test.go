package bindgen

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woxQAQ/bindgen-host/internal/heap"
	"github.com/woxQAQ/bindgen-host/internal/wasm"
)

type flatMemory struct {
	data []byte
}

func (m *flatMemory) Size() uint32 { return uint32(len(m.data)) }

func (m *flatMemory) Read(offset, n uint32) ([]byte, bool) {
	if uint64(offset)+uint64(n) > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset : offset+n], true
}

func (m *flatMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], v)
	return true
}

// bumpAllocator replaces the backing slice on every allocation, the way
// memory growth would.
type bumpAllocator struct {
	mem      *flatMemory
	views    *wasm.Memory
	top      uint32
	mallocs  int
	reallocs int
	frees    int
}

func (a *bumpAllocator) Malloc(_ context.Context, size, _ uint32) (uint32, error) {
	a.mallocs++
	ptr := a.top
	a.top += size
	if int(a.top) > len(a.mem.data) {
		grown := make([]byte, int(a.top)*2)
		copy(grown, a.mem.data)
		a.mem.data = grown
	}
	a.views.Invalidate()
	return ptr, nil
}

func (a *bumpAllocator) Realloc(ctx context.Context, ptr, oldSize, newSize, align uint32) (uint32, error) {
	a.reallocs++
	a.mallocs--
	fresh, err := a.Malloc(ctx, newSize, align)
	if err != nil {
		return 0, err
	}
	copy(a.mem.data[fresh:], a.mem.data[ptr:ptr+oldSize])
	return fresh, nil
}

func (a *bumpAllocator) Free(context.Context, uint32, uint32, uint32) error {
	a.frees++
	return nil
}

func newTestTranscoder(size int) (*Transcoder, *bumpAllocator, *heap.Table) {
	mem := &flatMemory{data: make([]byte, size)}
	views := wasm.NewMemory(mem)
	alloc := &bumpAllocator{mem: mem, views: views, top: 16}
	table := heap.New(0)
	return NewTranscoder(views, alloc, table), alloc, table
}

func TestPassString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		reallocs int
	}{
		{"empty", "", "", 0},
		{"ascii", "hello", "hello", 0},
		{"mixed", "héllo", "héllo", 1},
		{"multibyte first", "日本語", "日本語", 1},
		{"emoji", "ok 👍", "ok 👍", 1},
		{"invalid input", "a\xffb", "a�b", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, alloc, _ := newTestTranscoder(64)

			ptr, length, err := tr.PassString(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, uint32(len(tt.want)), length)
			assert.Equal(t, tt.reallocs, alloc.reallocs)

			got, err := tr.String(ptr, length)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPassStringAcrossGrowth(t *testing.T) {
	tr, _, _ := newTestTranscoder(32)
	long := strings.Repeat("ab", 100) + "é"

	ptr, length, err := tr.PassString(context.Background(), long)
	require.NoError(t, err)
	got, err := tr.String(ptr, length)
	require.NoError(t, err)
	assert.Equal(t, long, got)
}

func TestStringIsStrict(t *testing.T) {
	tr, _, _ := newTestTranscoder(64)
	require.NoError(t, tr.mem.WriteBytes(8, []byte{'h', 'i', 0xc3, 0x28}))

	_, err := tr.String(8, 4)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, uint32(8), decodeErr.Ptr)
	assert.Equal(t, 2, decodeErr.Offset)

	_, err = tr.String(60, 8)
	var accessErr *wasm.MemoryAccessError
	assert.ErrorAs(t, err, &accessErr)
}

func TestCachedString(t *testing.T) {
	tr, _, table := newTestTranscoder(64)
	h := table.Alloc("interned")

	got, err := tr.CachedString(0, h)
	require.NoError(t, err)
	assert.Equal(t, "interned", got)

	require.NoError(t, tr.mem.WriteBytes(8, []byte("direct")))
	got, err = tr.CachedString(8, 6)
	require.NoError(t, err)
	assert.Equal(t, "direct", got)
}

func TestPassBytes(t *testing.T) {
	tr, _, _ := newTestTranscoder(16)
	data := []byte{0, 1, 2, 0xff, 0xfe}

	ptr, length, err := tr.PassBytes(context.Background(), data)
	require.NoError(t, err)
	got, err := tr.Bytes(ptr, length)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteSlice(t *testing.T) {
	tr, _, _ := newTestTranscoder(64)

	require.NoError(t, tr.WriteSlice(8, 100, 5))
	ptr, err := tr.mem.ReadUint32(8)
	require.NoError(t, err)
	length, err := tr.mem.ReadUint32(12)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), ptr)
	assert.Equal(t, uint32(5), length)

	var accessErr *wasm.MemoryAccessError
	assert.ErrorAs(t, tr.WriteSlice(6, 1, 1), &accessErr)
	assert.ErrorAs(t, tr.WriteSlice(60, 1, 1), &accessErr)
}

func TestWriteOptionalString(t *testing.T) {
	tr, _, _ := newTestTranscoder(64)
	require.NoError(t, tr.WriteSlice(8, 9, 9))

	require.NoError(t, tr.WriteOptionalString(context.Background(), 8, "", false))
	ptr, _ := tr.mem.ReadUint32(8)
	length, _ := tr.mem.ReadUint32(12)
	assert.Zero(t, ptr)
	assert.Zero(t, length)

	require.NoError(t, tr.WriteOptionalString(context.Background(), 8, "", true))
	ptr, _ = tr.mem.ReadUint32(8)
	assert.NotZero(t, ptr, "present empty string still gets a buffer")
}

func TestWriteOptionalNumber(t *testing.T) {
	tr, _, _ := newTestTranscoder(64)

	require.NoError(t, tr.WriteOptionalNumber(16, -1.25, true))
	flag, _ := tr.mem.ReadUint32(16)
	assert.Equal(t, uint32(1), flag)

	require.NoError(t, tr.WriteOptionalNumber(16, 3, false))
	flag, _ = tr.mem.ReadUint32(16)
	assert.Zero(t, flag)
	raw, err := tr.mem.ReadBytes(24, 8)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), raw)
}
