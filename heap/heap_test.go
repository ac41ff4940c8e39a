package heap

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeapName(t *testing.T) string {
	return fmt.Sprintf("bridge_heap_test_%s_%d", t.Name(), os.Getpid())
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	name := testHeapName(t)
	h := NewHeap(name, 4096, 256, 4)
	defer h.Close()

	id, err := h.Allocate(300)
	require.NoError(t, err)
	assert.NotEqual(t, InvalidId, id)

	buf, err := h.Buf(id)
	require.NoError(t, err)
	assert.Len(t, buf, 300)

	copy(buf, []byte("hello heap"))
	assert.Equal(t, "hello heap", string(buf[:10]))

	require.NoError(t, h.Deallocate(id))
	_, err = h.Buf(id)
	assert.Error(t, err)
}

func TestAllocateGrowsSegmentOnExhaustion(t *testing.T) {
	name := testHeapName(t)
	h := NewHeap(name, 512, 256, 4) // 2 chunks per segment
	defer h.Close()

	var added []uint32
	h.OnAddSegment(func(segID uint32, size int) { added = append(added, segID) })

	id1, err := h.Allocate(256)
	require.NoError(t, err)
	id2, err := h.Allocate(256)
	require.NoError(t, err)
	assert.Empty(t, added)

	id3, err := h.Allocate(256)
	require.NoError(t, err)
	assert.Len(t, added, 1)

	assert.NotEqual(t, id1.segmentID(), id3.segmentID())
	assert.Equal(t, id1.segmentID(), id2.segmentID())
}

func TestAllocateFailsPastSegmentLimit(t *testing.T) {
	name := testHeapName(t)
	h := NewHeap(name, 256, 256, 1) // one chunk per segment, one segment max
	defer h.Close()

	_, err := h.Allocate(256)
	require.NoError(t, err)

	_, err = h.Allocate(256)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestOpenHeapAttachesSegmentAndTracksNotedAllocs(t *testing.T) {
	name := testHeapName(t)
	owner := NewHeap(name, 4096, 256, 4)
	defer owner.Close()

	id, err := owner.Allocate(300)
	require.NoError(t, err)

	peer := OpenHeap(name)
	defer peer.Close()
	require.NoError(t, peer.AttachSegment(id.segmentID()))
	peer.NoteAlloc(id, 300)

	buf, err := peer.Buf(id)
	require.NoError(t, err)
	assert.Len(t, buf, 300)

	ownerBuf, err := owner.Buf(id)
	require.NoError(t, err)
	copy(ownerBuf, []byte("shared"))
	assert.Equal(t, "shared", string(buf[:6]))

	peer.NoteDealloc(id)
	_, err = peer.Buf(id)
	assert.Error(t, err)
}

func TestPolicyAllows(t *testing.T) {
	p := PolicyDynamicBuffers | PolicyStaticBuffers
	assert.True(t, p.Allows(PolicyDynamicBuffers))
	assert.False(t, p.Allows(PolicyTextures))
}
