package bridge

import (
	"fmt"
	"time"

	"github.com/NVIDIAGameWorks/bridge-remix/commands"
	"github.com/NVIDIAGameWorks/bridge-remix/internal/ring"
)

var handshakeLog = componentLog("handshake")

// ClientHandshake runs the client side of the startup sequence on the
// control channel: send Syn carrying the client's own process handle,
// wait for Ack, then send Continue and move both sides to Running.
// Ported from d3d9_lss.cpp's bootstrap sequence.
func ClientHandshake(ch *Channel, clientProcessHandle uint32, timeout time.Duration) error {
	ch.SetServerState(Init)

	if err := ch.send.cmd.Push(ring.Header{CommandID: uint32(commands.Syn), Handle: clientProcessHandle}); err != nil {
		return fmt.Errorf("%w: sending Syn: %v", ErrHandshake, err)
	}
	ch.SetClientState(Handshaking)

	h, err := waitForCommand(ch, commands.Ack, timeout)
	if err != nil {
		ch.SetServerState(DoneProcessing)
		handshakeLog.Error("handshake failed waiting for Ack: ", err)
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	_ = h // server thread id, informational only on this side

	ch.SetServerState(Handshaking)
	continueHeader := ring.Header{CommandID: uint32(commands.Continue), Flags: uint32(ch.opts.syncFlags())}
	if err := ch.send.cmd.Push(continueHeader); err != nil {
		return fmt.Errorf("%w: sending Continue: %v", ErrHandshake, err)
	}

	ch.SetClientState(Running)
	ch.SetServerState(Running)
	return nil
}

// ServerHandshake runs the server side: wait for Syn (recovering the
// client's process handle from its payload), send Ack carrying the
// server's own identifying value (e.g. its message-channel worker
// thread id), then wait for Continue before entering steady state.
// Continue's flags word carries the client's timeout/retry sync flags,
// which the server adopts so both sides agree on whether timeouts and
// retry limits are in effect without the server re-reading config.
func ServerHandshake(ch *Channel, serverIdentity uint32, timeout time.Duration) (clientProcessHandle uint32, err error) {
	synHeader, err := waitForCommand(ch, commands.Syn, timeout)
	if err != nil {
		handshakeLog.Error("handshake failed waiting for Syn: ", err)
		return 0, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	clientProcessHandle = synHeader.Handle

	if err := ch.send.cmd.Push(ring.Header{CommandID: uint32(commands.Ack), Handle: serverIdentity}); err != nil {
		return 0, fmt.Errorf("%w: sending Ack: %v", ErrHandshake, err)
	}

	continueHeader, err := waitForCommand(ch, commands.Continue, timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: waiting for Continue: %v", ErrHandshake, err)
	}
	ch.opts.applySyncFlags(syncFlags(continueHeader.Flags))

	ch.SetClientState(Running)
	ch.SetServerState(Running)
	return clientProcessHandle, nil
}

// ClientShutdown sends Terminate and waits for the server's final Ack
// (or infiniteRetries worth of attempts if configured), then marks
// both sides Exited.
func ClientShutdown(ch *Channel, timeout time.Duration, infiniteRetries bool) error {
	ch.SetClientState(DoneProcessing)
	if err := ch.send.cmd.Push(ring.Header{CommandID: uint32(commands.Terminate)}); err != nil {
		return fmt.Errorf("%w: sending Terminate: %v", ErrHandshake, err)
	}
	for {
		_, err := waitForCommand(ch, commands.Ack, timeout)
		if err == nil {
			break
		}
		if !infiniteRetries {
			ch.SetClientState(Exited)
			return fmt.Errorf("%w: no Ack for Terminate: %v", ErrPeerDied, err)
		}
		handshakeLog.Warn("retrying wait for shutdown Ack")
	}
	ch.SetClientState(Exited)
	ch.SetServerState(Exited)
	return nil
}

// ServerShutdown waits for Terminate and replies with a final Ack,
// the counterpart to ClientShutdown.
func ServerShutdown(ch *Channel, timeout time.Duration) error {
	if _, err := waitForCommand(ch, commands.Terminate, timeout); err != nil {
		return fmt.Errorf("%w: waiting for Terminate: %v", ErrHandshake, err)
	}
	return AckShutdown(ch)
}

// AckShutdown completes the server side of shutdown for a caller that
// already pulled the Terminate command off the channel itself, e.g. a
// dispatch loop that mixes Terminate in with its own command
// handling instead of calling ServerShutdown to wait for it.
func AckShutdown(ch *Channel) error {
	ch.SetServerState(Exited)
	if err := ch.send.cmd.Push(ring.Header{CommandID: uint32(commands.Ack)}); err != nil {
		return fmt.Errorf("%w: sending final Ack: %v", ErrHandshake, err)
	}
	return nil
}

// WaitForResponse blocks up to timeout for a Bridge_Response header
// and returns the one data token that follows it, the Go port of
// WAIT_FOR_SERVER_RESPONSE: a client call that set
// commands.FlagExpectsResponse on its command calls this right after
// WithCommand returns, then unmarshals its own response type out of
// the returned bytes.
func WaitForResponse(ch *Channel, timeout time.Duration) ([]byte, error) {
	if _, err := waitForCommand(ch, commands.Response, timeout); err != nil {
		return nil, fmt.Errorf("%w: waiting for response: %v", ErrProtocol, err)
	}
	data, err := ch.ReceiveData(int(timeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response payload: %v", ErrProtocol, err)
	}
	return data, nil
}

// waitForCommand blocks for up to timeout for the next header on ch
// to carry the expected id, mirroring DeviceBridge::waitForCommand. A
// header with a different id is treated as a protocol violation: the
// handshake only ever expects one specific command at each step.
func waitForCommand(ch *Channel, want commands.ID, timeout time.Duration) (ring.Header, error) {
	h, err := ch.recv.cmd.Pull(int(timeout.Milliseconds()))
	if err != nil {
		if err == ring.ErrTimeout {
			return ring.Header{}, ErrTimeout
		}
		return ring.Header{}, err
	}
	if commands.ID(h.CommandID) != want {
		return ring.Header{}, fmt.Errorf("%w: expected %s, got %s", ErrProtocol, want, commands.ID(h.CommandID))
	}
	return h, nil
}
