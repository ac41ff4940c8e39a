package presentsem

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSemName(t *testing.T) string {
	return fmt.Sprintf("bridge_presentsem_test_%s_%d", t.Name(), os.Getpid())
}

func TestWaitReleaseRoundTrip(t *testing.T) {
	name := testSemName(t)

	owner, err := New(name, 0, 3)
	require.NoError(t, err)
	defer owner.Close()

	peer, err := Open(name)
	require.NoError(t, err)
	defer peer.Close()

	assert.Equal(t, uint32(0), owner.Value())

	owner.Release()
	require.NoError(t, peer.Wait(100))
	assert.Equal(t, uint32(0), owner.Value())
}

func TestReleaseNeverExceedsMax(t *testing.T) {
	name := testSemName(t)

	owner, err := New(name, 0, 2)
	require.NoError(t, err)
	defer owner.Close()

	owner.Release()
	owner.Release()
	owner.Release()
	assert.Equal(t, uint32(2), owner.Value())
}

func TestWaitTimesOutOnEmptySemaphore(t *testing.T) {
	name := testSemName(t)

	owner, err := New(name, 0, 1)
	require.NoError(t, err)
	defer owner.Close()

	err = owner.Wait(50)
	assert.Error(t, err)
}

func TestTryWaitDoesNotBlock(t *testing.T) {
	name := testSemName(t)

	owner, err := New(name, 1, 1)
	require.NoError(t, err)
	defer owner.Close()

	assert.True(t, owner.TryWait())
	assert.False(t, owner.TryWait())
}

func TestWaitUnblocksOnRelease(t *testing.T) {
	name := testSemName(t)

	owner, err := New(name, 0, 1)
	require.NoError(t, err)
	defer owner.Close()

	peer, err := Open(name)
	require.NoError(t, err)
	defer peer.Close()

	done := make(chan error, 1)
	go func() { done <- peer.Wait(2000) }()

	time.Sleep(20 * time.Millisecond)
	owner.Release()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait never unblocked after Release")
	}
}

func TestCloseUnblocksWaiters(t *testing.T) {
	name := testSemName(t)

	owner, err := New(name, 0, 1)
	require.NoError(t, err)

	peer, err := Open(name)
	require.NoError(t, err)
	defer peer.Close()

	done := make(chan error, 1)
	go func() { done <- peer.Wait(2000) }()

	time.Sleep(20 * time.Millisecond)
	owner.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait never unblocked after Close")
	}
}
