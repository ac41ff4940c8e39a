package lockinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIAGameWorks/bridge-remix/heap"
)

func TestPushPopOrdersByInsertion(t *testing.T) {
	f := New()
	f.Push(Record{Offset: 0, Size: 16, ShadowID: 1})
	f.Push(Record{Offset: 16, Size: 32, ShadowID: 2})

	first, err := f.Pop()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), first.ShadowID)

	second, err := f.Pop()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), second.ShadowID)

	assert.Equal(t, 0, f.Len())
}

func TestFrontDoesNotRemove(t *testing.T) {
	f := New()
	f.Push(Record{Offset: 4, Size: 8})

	front, err := f.Front()
	require.NoError(t, err)
	assert.Equal(t, uint32(4), front.Offset)
	assert.Equal(t, 1, f.Len())
}

func TestPopEmptyReturnsErrEmpty(t *testing.T) {
	f := New()
	_, err := f.Pop()
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = f.Front()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNestedLocksPreserveHeapAllocAndDiscard(t *testing.T) {
	f := New()
	f.Push(Record{HeapAlloc: heap.AllocId(100), DiscardedHeapAlloc: heap.InvalidId})
	f.Push(Record{HeapAlloc: heap.AllocId(200), DiscardedHeapAlloc: heap.AllocId(100)})

	r1, err := f.Pop()
	require.NoError(t, err)
	assert.Equal(t, heap.AllocId(100), r1.HeapAlloc)
	assert.Equal(t, heap.InvalidId, r1.DiscardedHeapAlloc)

	r2, err := f.Pop()
	require.NoError(t, err)
	assert.Equal(t, heap.AllocId(200), r2.HeapAlloc)
	assert.Equal(t, heap.AllocId(100), r2.DiscardedHeapAlloc)
}
