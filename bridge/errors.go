package bridge

import "errors"

// Sentinel errors for the four transport-level failure categories the
// bridge distinguishes (the fifth, an application-level HRESULT
// carried in a Response payload, is opaque to this package and passed
// through untouched).
var (
	// ErrTimeout is returned when a blocking wait on the command or
	// data queue exceeds its deadline.
	ErrTimeout = errors.New("bridge: operation timed out")

	// ErrHandshake is returned when the Syn/Ack/Continue sequence
	// fails to complete, including a version mismatch between client
	// and server.
	ErrHandshake = errors.New("bridge: handshake failed")

	// ErrProtocol is returned when a received command or payload
	// violates the wire contract (unexpected command id, queue
	// desync, corrupt length prefix).
	ErrProtocol = errors.New("bridge: protocol violation")

	// ErrPeerDied is returned once the peer process is confirmed gone
	// while a command or handshake step was still outstanding.
	ErrPeerDied = errors.New("bridge: peer process exited")

	// ErrBusy is returned by WithCommand when another Command scope
	// is already open on the same Channel.
	ErrBusy = errors.New("bridge: another command is already in progress on this channel")

	// ErrDisabled names the state a channel enters after exhausted
	// command retries. WithCommand does not return it: the command that
	// exhausts its retries, and every WithCommand on the disabled
	// channel after it, return the closure's own error (nil if none).
	ErrDisabled = errors.New("bridge: disabled after unrecoverable command failure")
)
