package shadow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackResolveErase(t *testing.T) {
	m := New()
	require.NoError(t, m.Track(1, "IDirect3DTexture9", "native-tex"))

	obj, ok := m.Resolve(1)
	require.True(t, ok)
	assert.Equal(t, "native-tex", obj)

	assert.ErrorIs(t, m.Track(1, "IDirect3DTexture9", "other"), ErrAlreadyTracked)

	obj, ok = m.Erase(1)
	require.True(t, ok)
	assert.Equal(t, "native-tex", obj)

	_, ok = m.Resolve(1)
	assert.False(t, ok)
}

func TestGetOrTrackIncrementsRefOnRepeat(t *testing.T) {
	m := New()
	calls := 0
	newObj := func() any {
		calls++
		return "created"
	}

	obj, created := m.GetOrTrack(5, "IDirect3DSurface9", newObj)
	assert.True(t, created)
	assert.Equal(t, "created", obj)

	obj, created = m.GetOrTrack(5, "IDirect3DSurface9", newObj)
	assert.False(t, created)
	assert.Equal(t, "created", obj)
	assert.Equal(t, 1, calls)
}

func TestReleaseUntilZeroThenStop(t *testing.T) {
	m := New()
	require.NoError(t, m.Track(2, "IDirect3DVertexBuffer9", "buf"))
	require.NoError(t, m.AddRef(2))
	require.NoError(t, m.AddRef(2))

	_, erased := m.Release(2)
	assert.False(t, erased)
	_, erased = m.Release(2)
	assert.False(t, erased)
	obj, erased := m.Release(2)
	assert.True(t, erased)
	assert.Equal(t, "buf", obj)

	// releasing an id already at zero refs (or never tracked) is a
	// no-op, not an error.
	obj, erased = m.Release(2)
	assert.False(t, erased)
	assert.Nil(t, obj)
}

func TestAddRefUntrackedIsError(t *testing.T) {
	m := New()
	assert.ErrorIs(t, m.AddRef(99), ErrNotTracked)
}

func TestEraseDropsBindingRegardlessOfRefcount(t *testing.T) {
	m := New()
	require.NoError(t, m.Track(3, "IDirect3DIndexBuffer9", "ib"))
	require.NoError(t, m.AddRef(3))
	require.NoError(t, m.AddRef(3))

	obj, ok := m.Erase(3)
	require.True(t, ok)
	assert.Equal(t, "ib", obj)
	assert.Equal(t, 0, m.Len())
}

func TestDumpRecentHistoryAfterErase(t *testing.T) {
	m := New()
	require.NoError(t, m.Track(7, "IDirect3DTexture9", "tex"))
	_, ok := m.Erase(7)
	require.True(t, ok)

	// should not panic and should observe the erased id in the ring.
	m.DumpRecentHistory()
	_, ok = m.recent.Peek(7)
	assert.True(t, ok)
}
