package ring

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandQueuePushPullFIFO(t *testing.T) {
	buf := make([]byte, CommandQueueSize(4))
	q, err := NewCommandQueue(fmt.Sprintf("cq_%s", t.Name()), buf, 4)
	require.NoError(t, err)

	require.NoError(t, q.Push(Header{CommandID: 1, Handle: 10}))
	require.NoError(t, q.Push(Header{CommandID: 2, Handle: 20}))
	assert.False(t, q.IsEmpty())

	h, err := q.Pull(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.CommandID)

	h, err = q.Pull(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), h.CommandID)

	assert.True(t, q.IsEmpty())
}

func TestCommandQueueFullReturnsErrAgain(t *testing.T) {
	buf := make([]byte, CommandQueueSize(2))
	q, err := NewCommandQueue(fmt.Sprintf("cq_%s", t.Name()), buf, 2)
	require.NoError(t, err)

	require.NoError(t, q.Push(Header{CommandID: 1}))
	require.NoError(t, q.Push(Header{CommandID: 2}))
	assert.ErrorIs(t, q.Push(Header{CommandID: 3}), ErrAgain)
}

func TestDataQueueTokenRoundTrip(t *testing.T) {
	buf := make([]byte, DataQueueSize(256))
	q, err := NewDataQueue(fmt.Sprintf("dq_%s", t.Name()), buf, 256)
	require.NoError(t, err)

	require.NoError(t, q.PushBytes([]byte("hello")))
	require.NoError(t, q.PushBytes([]byte("world!!")))

	got, err := q.Pull(0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	got, err = q.Pull(0)
	require.NoError(t, err)
	assert.Equal(t, "world!!", string(got))
}

func TestDataQueueBatchSuppressesWakeUntilEnd(t *testing.T) {
	buf := make([]byte, DataQueueSize(256))
	q, err := NewDataQueue(fmt.Sprintf("dq_%s", t.Name()), buf, 256)
	require.NoError(t, err)

	q.BeginBatch()
	require.NoError(t, q.PushBytes([]byte("a")))
	require.NoError(t, q.PushBytes([]byte("b")))
	q.EndBatch()

	got, err := q.Pull(0)
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
	got, err = q.Pull(0)
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func TestDataQueueEmptyBatchIsNoOp(t *testing.T) {
	buf := make([]byte, DataQueueSize(64))
	q, err := NewDataQueue(fmt.Sprintf("dq_%s", t.Name()), buf, 64)
	require.NoError(t, err)

	before := q.Pos()
	q.BeginBatch()
	q.EndBatch()
	assert.Equal(t, before, q.Pos())
}

func TestDataQueueSkipToFastForwardsPastUnwantedTokens(t *testing.T) {
	buf := make([]byte, DataQueueSize(256))
	q, err := NewDataQueue(fmt.Sprintf("dq_%s", t.Name()), buf, 256)
	require.NoError(t, err)

	require.NoError(t, q.PushBytes([]byte("skip-me")))
	require.NoError(t, q.PushBytes([]byte("skip-me-too")))
	target := q.Pos()
	require.NoError(t, q.PushBytes([]byte("wanted")))

	require.NoError(t, q.SkipTo(target))
	got, err := q.Pull(0)
	require.NoError(t, err)
	assert.Equal(t, "wanted", string(got))
}

func TestDataQueueSkipToAcrossWrap(t *testing.T) {
	buf := make([]byte, DataQueueSize(32))
	q, err := NewDataQueue(fmt.Sprintf("dq_%s", t.Name()), buf, 32)
	require.NoError(t, err)

	require.NoError(t, q.PushBytes([]byte("1234567890123456789012"))) // forces a wrap on the next write
	_, err = q.Pull(0)
	require.NoError(t, err)
	require.NoError(t, q.PushBytes([]byte("aaa")))
	target := q.Pos()
	require.NoError(t, q.PushBytes([]byte("bbb")))

	require.NoError(t, q.SkipTo(target))
	got, err := q.Pull(0)
	require.NoError(t, err)
	assert.Equal(t, "bbb", string(got))
}

func TestDataQueueSkipToWaitBlocksUntilReachable(t *testing.T) {
	buf := make([]byte, DataQueueSize(64))
	q, err := NewDataQueue(fmt.Sprintf("dq_%s", t.Name()), buf, 64)
	require.NoError(t, err)

	assert.ErrorIs(t, q.SkipTo(40), ErrAgain)

	target := q.Pos() + tokenSpace(len("later"))
	done := make(chan error, 1)
	go func() {
		done <- q.SkipToWait(target, 1000)
	}()

	require.NoError(t, q.PushBytes([]byte("later")))
	require.NoError(t, <-done)
}

func TestCommandQueueConcurrentProducerConsumer(t *testing.T) {
	buf := make([]byte, CommandQueueSize(8))
	q, err := NewCommandQueue(fmt.Sprintf("cq_%s", t.Name()), buf, 8)
	require.NoError(t, err)

	const n = 500
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			require.NoError(t, q.PushWait(Header{CommandID: uint32(i)}, -1))
		}
	}()

	seen := make([]uint32, 0, n)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			h, err := q.Pull(-1)
			require.NoError(t, err)
			seen = append(seen, h.CommandID)
		}
	}()

	wg.Wait()
	require.Len(t, seen, n)
	for i, v := range seen {
		assert.Equal(t, uint32(i), v)
	}
}
