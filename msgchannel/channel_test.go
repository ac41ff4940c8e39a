package msgchannel

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannelName(t *testing.T) string {
	return fmt.Sprintf("bridge_msgchannel_test_%s_%d", t.Name(), os.Getpid())
}

func TestSendDispatchRoundTrip(t *testing.T) {
	name := testChannelName(t)

	owner, err := NewChannel(name, 8)
	require.NoError(t, err)
	defer owner.Close()

	peer, err := OpenChannel(name, 8)
	require.NoError(t, err)
	defer peer.Close()

	got := make(chan [2]uint64, 1)
	peer.RegisterHandler(TypeFocusLost, func(p1, p2 uint64) {
		got <- [2]uint64{p1, p2}
	})

	require.NoError(t, owner.Send(TypeFocusLost, 7, 9))
	require.NoError(t, peer.Dispatch(1000))

	select {
	case v := <-got:
		assert.Equal(t, [2]uint64{7, 9}, v)
	default:
		t.Fatal("handler was not invoked")
	}
}

func TestDispatchWithNoHandlerIsDropped(t *testing.T) {
	name := testChannelName(t)

	owner, err := NewChannel(name, 8)
	require.NoError(t, err)
	defer owner.Close()

	peer, err := OpenChannel(name, 8)
	require.NoError(t, err)
	defer peer.Close()

	require.NoError(t, owner.Send(999, 1, 2))
	assert.NoError(t, peer.Dispatch(1000))
}

func TestInfiniteRetriesAllowsUnboundedWait(t *testing.T) {
	name := testChannelName(t)

	owner, err := NewChannel(name, 1)
	require.NoError(t, err)
	defer owner.Close()

	_, err = OpenChannel(name, 1)
	require.NoError(t, err)

	owner.SetInfiniteRetries(true)
	require.NoError(t, owner.Send(TypeOverlayToggled, 1, 0))

	done := make(chan error, 1)
	go func() { done <- owner.Send(TypeOverlayToggled, 2, 0) }()

	select {
	case err := <-done:
		t.Fatalf("expected Send to block on a full queue, got %v", err)
	default:
	}
}
