package bridge

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIAGameWorks/bridge-remix/commands"
	"github.com/NVIDIAGameWorks/bridge-remix/internal/ring"
)

func testChannelName(t *testing.T) string {
	return fmt.Sprintf("bridge_test_%s_%d", t.Name(), os.Getpid())
}

func TestChannelRoundTrip(t *testing.T) {
	name := testChannelName(t)

	server, err := NewChannel(name, 8, 4096)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenChannel(name, 8, 4096)
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, server.Running())
	assert.True(t, client.Running())

	// what the owner pushes on its send queue, the attacher must see
	// on its recv queue, and vice versa.
	require.NoError(t, server.send.cmd.Push(headerFor(commands.DebugMessage, 42)))
	h, err := client.recv.cmd.Pull(1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(commands.DebugMessage), h.CommandID)
	assert.Equal(t, uint32(42), h.Handle)

	require.NoError(t, client.send.cmd.Push(headerFor(commands.Ack, 7)))
	h, err = server.recv.cmd.Pull(1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(commands.Ack), h.CommandID)
	assert.Equal(t, uint32(7), h.Handle)
}

func headerFor(id commands.ID, handle uint32) ring.Header {
	return ring.Header{CommandID: uint32(id), Handle: handle}
}

func TestHandshakeClientServer(t *testing.T) {
	name := testChannelName(t)

	server, err := NewChannel(name, 8, 4096)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenChannel(name, 8, 4096)
	require.NoError(t, err)
	defer client.Close()

	client.opts.InfiniteRetries = true

	errs := make(chan error, 2)
	var serverClientHandle uint32
	go func() {
		var serr error
		serverClientHandle, serr = ServerHandshake(server, 99, 2*time.Second)
		errs <- serr
	}()
	go func() {
		errs <- ClientHandshake(client, 1234, 2*time.Second)
	}()

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Equal(t, uint32(1234), serverClientHandle)
	assert.Equal(t, Running, client.ClientState())
	assert.Equal(t, Running, client.ServerState())
	assert.Equal(t, Running, server.ClientState())
	assert.Equal(t, Running, server.ServerState())
	assert.False(t, client.opts.DisableTimeouts)
	assert.True(t, server.opts.InfiniteRetries)
}

func TestHandshakeShutdown(t *testing.T) {
	name := testChannelName(t)

	server, err := NewChannel(name, 8, 4096)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenChannel(name, 8, 4096)
	require.NoError(t, err)
	defer client.Close()

	errs := make(chan error, 2)
	go func() {
		_, serr := ServerHandshake(server, 1, time.Second)
		errs <- serr
	}()
	go func() {
		errs <- ClientHandshake(client, 1, time.Second)
	}()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	go func() {
		errs <- ServerShutdown(server, time.Second)
	}()
	require.NoError(t, ClientShutdown(client, time.Second, false))
	require.NoError(t, <-errs)

	assert.Equal(t, Exited, client.ClientState())
	assert.Equal(t, Exited, server.ServerState())
}

func TestWithCommandSendsHeader(t *testing.T) {
	name := testChannelName(t)

	server, err := NewChannel(name, 8, 4096)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenChannel(name, 8, 4096)
	require.NoError(t, err)
	defer client.Close()

	err = WithCommand(client, commands.DebugMessage, 5, commands.FlagNone, func(c *Command) error {
		return c.SendData([]byte("hello"))
	})
	require.NoError(t, err)

	h, err := server.recv.cmd.Pull(1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(commands.DebugMessage), h.CommandID)
	assert.Equal(t, uint32(5), h.Handle)

	data, err := server.recv.data.Pull(1000)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWithCommandBusyReturnsErrBusy(t *testing.T) {
	name := testChannelName(t)

	server, err := NewChannel(name, 8, 4096)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenChannel(name, 8, 4096)
	require.NoError(t, err)
	defer client.Close()

	done := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = WithCommand(client, commands.DebugMessage, 0, commands.FlagNone, func(c *Command) error {
			close(started)
			<-done
			return nil
		})
	}()
	<-started

	err = WithCommand(client, commands.DebugMessage, 0, commands.FlagNone, func(c *Command) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrBusy)
	close(done)
}

func TestWithCommandDisablesChannelAfterExhaustedRetries(t *testing.T) {
	name := testChannelName(t)

	server, err := NewChannel(name, 2, 64)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenChannel(name, 2, 64)
	require.NoError(t, err)
	defer client.Close()
	client.opts.CommandRetries = 1

	// fill the client's send command queue so the next Push keeps
	// failing with ErrAgain until retries are exhausted.
	require.NoError(t, client.send.cmd.Push(ring.Header{}))
	require.NoError(t, client.send.cmd.Push(ring.Header{}))

	err = WithCommand(client, commands.DebugMessage, 0, commands.FlagNone, func(c *Command) error {
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, client.Running())
}

func TestWaitForResponseRoundTrip(t *testing.T) {
	name := testChannelName(t)

	server, err := NewChannel(name, 8, 4096)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenChannel(name, 8, 4096)
	require.NoError(t, err)
	defer client.Close()

	err = WithCommand(server, commands.Response, 0, commands.FlagNone, func(c *Command) error {
		return c.SendData([]byte("result"))
	})
	require.NoError(t, err)

	data, err := WaitForResponse(client, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "result", string(data))
}

func TestWaitForResponseTimesOutWithoutResponse(t *testing.T) {
	name := testChannelName(t)

	server, err := NewChannel(name, 8, 4096)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenChannel(name, 8, 4096)
	require.NoError(t, err)
	defer client.Close()

	_, err = WaitForResponse(client, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestWithCommandMarksHeapResidentFlag(t *testing.T) {
	name := testChannelName(t)

	server, err := NewChannel(name, 8, 4096)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenChannel(name, 8, 4096)
	require.NoError(t, err)
	defer client.Close()

	// Buffer-unlock with its payload resident in the shared heap: no
	// data queue write at all, just the flag and the allocation's id
	// carried in handle.
	err = WithCommand(client, commands.UnlinkResource, 1, commands.FlagNone, func(c *Command) error {
		c.MarkHeapResident()
		return nil
	})
	require.NoError(t, err)

	h, err := server.recv.cmd.Pull(1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.Handle)
	assert.True(t, commands.Flags(h.Flags)&commands.FlagDataInHeap != 0)
}

func TestSyncDataQueueRejectsOversizedBatch(t *testing.T) {
	name := testChannelName(t)

	server, err := NewChannel(name, 8, 64)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenChannel(name, 8, 64)
	require.NoError(t, err)
	defer client.Close()

	err = WithCommand(client, commands.DebugMessage, 0, commands.FlagNone, func(c *Command) error {
		return c.SendData(make([]byte, 1024))
	})
	assert.ErrorIs(t, err, ErrProtocol)
}
