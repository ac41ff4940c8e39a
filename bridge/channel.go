package bridge

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/NVIDIAGameWorks/bridge-remix/commands"
	"github.com/NVIDIAGameWorks/bridge-remix/internal/ring"
	"github.com/NVIDIAGameWorks/bridge-remix/internal/shm"
)

// syncRegion holds the fields the original IpcChannel keeps alongside
// its command and data queues: the server's last-seen read position,
// the client's next projected write position when an override is in
// flight, a flag telling the server it needs to wrap before catching
// up, and the published client/server bridge state pair. All of it
// lives in shared memory so both processes see the same values.
type syncRegion struct {
	serverDataPos     atomic.Int64
	clientExpectedPos atomic.Int64
	resetPosRequired  atomic.Uint32
	state             stateAccessors
}

var syncRegionSize = int(unsafe.Sizeof(syncRegion{}))

// direction is one command-queue/data-queue pair flowing a single
// way. A Channel owns two: the first is the owning process's outbound
// direction (its send) and the second its inbound (its recv), and the
// attacher takes them the other way round — exactly the swap the teacher's
// setOwner performs between the creator and the attacher.
type direction struct {
	cmd  *ring.CommandQueue
	data *ring.DataQueue
}

// Channel is a bidirectional command/data queue pair over a single
// shared-memory arena — the Go realization of the source's
// IpcChannel, generalized to carry both directions the way the
// teacher's bidirectional kaze.Channel does, since handshake commands
// (Syn/Ack/Continue/Terminate) flow in both directions over the same
// named channel.
type Channel struct {
	arena *shm.Arena
	sync  *syncRegion

	send direction // this process writes here, peer reads
	recv direction // peer writes here, this process reads

	mu      sync.Mutex
	running atomic.Bool

	opts Options

	// overflowWait backs the data-queue overflow-avoidance protocol's
	// blocking step (the source's dataSemaphore->wait()). It defaults
	// to a short sleep so the queue still makes forward progress
	// without a configured semaphore; SetOverflowWait lets a device
	// channel plug in its real present-semaphore-backed wait.
	overflowWait func() error

	historyMu sync.Mutex
	history   []ring.Header
}

// commandHistorySize bounds the recent-command ring WithCommand feeds
// on every successful push — enough to reconstruct the handful of
// calls immediately preceding a desync without growing unbounded over
// a long-running session.
const commandHistorySize = 32

// recordHistory appends h to the channel's bounded recent-command
// ring, evicting the oldest entry once full.
func (ch *Channel) recordHistory(h ring.Header) {
	ch.historyMu.Lock()
	defer ch.historyMu.Unlock()
	ch.history = append(ch.history, h)
	if len(ch.history) > commandHistorySize {
		ch.history = ch.history[len(ch.history)-commandHistorySize:]
	}
}

// RecentHistory returns the channel's most recently pushed command
// headers, oldest first — the "recent command history" a peer-death
// or fatal-protocol handler logs before giving up on the channel.
func (ch *Channel) RecentHistory() []ring.Header {
	ch.historyMu.Lock()
	defer ch.historyMu.Unlock()
	out := make([]ring.Header, len(ch.history))
	copy(out, ch.history)
	return out
}

// SetOverflowWait installs the blocking primitive the data-queue
// overflow-avoidance protocol waits on when a write would lap the
// consumer. Device channels should wire this to their present
// semaphore's Wait; channels that never run SendData/SendMany
// under contention can leave the sleep-based default in place.
func (ch *Channel) SetOverflowWait(fn func() error) { ch.overflowWait = fn }

// SetOptions installs the configuration this channel's WithCommand
// calls should honor (retry counts, timeouts, batching). Channels
// default to DefaultOptions() until this is called.
func (ch *Channel) SetOptions(o Options) { ch.opts = o }

// NewChannel lays out a fresh Channel over a newly created arena named
// name, sized to hold cmdCap command headers and dataCap bytes of
// token data, in each direction. The creating process becomes the
// channel's owner.
func NewChannel(name string, cmdCap, dataCap uint32) (*Channel, error) {
	return openChannel(name, cmdCap, dataCap, true)
}

// OpenChannel attaches to a Channel the peer process already created.
func OpenChannel(name string, cmdCap, dataCap uint32) (*Channel, error) {
	return openChannel(name, cmdCap, dataCap, false)
}

func openChannel(name string, cmdCap, dataCap uint32, owner bool) (*Channel, error) {
	dirSize := ring.CommandQueueSize(cmdCap) + ring.DataQueueSize(dataCap)
	total := syncRegionSize + 2*dirSize

	var arena *shm.Arena
	var err error
	if owner {
		arena, err = shm.Create(name, total, true)
	} else {
		arena, err = shm.Open(name)
	}
	if err != nil {
		return nil, err
	}

	buf := arena.Bytes()
	ch := &Channel{
		arena: arena,
		sync:  (*syncRegion)(unsafe.Pointer(&buf[0])),
		opts:  DefaultOptions(),
	}
	ch.running.Store(true)
	ch.overflowWait = func() error {
		time.Sleep(time.Millisecond)
		return nil
	}

	dir0Buf := buf[syncRegionSize : syncRegionSize+dirSize]
	dir1Buf := buf[syncRegionSize+dirSize:]

	dir0, err := openDirection(name+"_0", dir0Buf, cmdCap, dataCap, owner)
	if err != nil {
		arena.Close()
		return nil, err
	}
	dir1, err := openDirection(name+"_1", dir1Buf, cmdCap, dataCap, owner)
	if err != nil {
		arena.Close()
		return nil, err
	}

	if owner {
		ch.send, ch.recv = dir0, dir1
	} else {
		ch.send, ch.recv = dir1, dir0
	}
	return ch, nil
}

func openDirection(name string, buf []byte, cmdCap, dataCap uint32, create bool) (direction, error) {
	cmdBuf := buf[:ring.CommandQueueSize(cmdCap)]
	dataBuf := buf[ring.CommandQueueSize(cmdCap):]

	var cmd *ring.CommandQueue
	var data *ring.DataQueue
	var err error
	if create {
		cmd, err = ring.NewCommandQueue(name+"_cmd", cmdBuf, cmdCap)
		if err != nil {
			return direction{}, err
		}
		data, err = ring.NewDataQueue(name+"_data", dataBuf, dataCap)
	} else {
		cmd, err = ring.OpenCommandQueue(name+"_cmd", cmdBuf, cmdCap)
		if err != nil {
			return direction{}, err
		}
		data, err = ring.OpenDataQueue(name+"_data", dataBuf, dataCap)
	}
	if err != nil {
		return direction{}, err
	}
	return direction{cmd: cmd, data: data}, nil
}

// Close tears the channel's queues down and releases its arena.
func (ch *Channel) Close() error {
	ch.running.Store(false)
	ch.send.cmd.Close()
	ch.send.data.Close()
	ch.recv.cmd.Close()
	ch.recv.data.Close()
	return ch.arena.Close()
}

// Disable turns the channel off without tearing down its resources:
// WithCommand becomes a no-op and further commands are dropped rather
// than retried, mirroring the source setting gbBridgeRunning = false
// after exhausting command retries.
func (ch *Channel) Disable() { ch.running.Store(false) }

// Running reports whether the channel is still accepting commands.
func (ch *Channel) Running() bool { return ch.running.Load() }

// SetClientState publishes this process's view of the client-side
// bridge state machine into shared memory.
func (ch *Channel) SetClientState(s ProcessState) { ch.sync.state.setClient(s) }

// ClientState reads the client-side bridge state, as published by
// either process.
func (ch *Channel) ClientState() ProcessState { return ch.sync.state.getClient() }

// SetServerState publishes this process's view of the server-side
// bridge state machine into shared memory.
func (ch *Channel) SetServerState(s ProcessState) { ch.sync.state.setServer(s) }

// ServerState reads the server-side bridge state, as published by
// either process.
func (ch *Channel) ServerState() ProcessState { return ch.sync.state.getServer() }

// ReceivedCommand is one command header pulled off a channel's
// incoming queue, the Go shape of the fields the source's dispatch
// loop destructures out of a raw BridgeCommand before routing it to
// the external Dispatcher by CommandID.
type ReceivedCommand struct {
	ID         commands.ID
	Flags      commands.Flags
	Handle     uint32
	DataOffset uint32
}

// Receive blocks up to timeoutMillis (negative forever) for the next
// command header addressed to this side, the counterpart to
// WithCommand for whichever process is on the receiving end of the
// channel — typically the server reading client-issued device calls,
// but symmetric enough for the client to use it for server-initiated
// notifications (SharedHeapAddSeg and friends).
func (ch *Channel) Receive(timeoutMillis int) (ReceivedCommand, error) {
	h, err := ch.recv.cmd.Pull(timeoutMillis)
	if err != nil {
		if err == ring.ErrTimeout {
			return ReceivedCommand{}, ErrTimeout
		}
		return ReceivedCommand{}, err
	}
	return ReceivedCommand{
		ID:         commands.ID(h.CommandID),
		Flags:      commands.Flags(h.Flags),
		Handle:     h.Handle,
		DataOffset: h.DataOffset,
	}, nil
}

// RecvDataPos returns this side's current read offset into the
// incoming data queue, the value a server passes to
// MarkServerDataPos once it has finished processing a command's
// tokens.
func (ch *Channel) RecvDataPos() uint32 { return ch.recv.data.HeadPos() }

// ReceiveData pulls the next data-queue token following a received
// command, blocking up to timeoutMillis. Call it once per token a
// command's payload is known to carry; the bridge itself has no
// per-command schema for how many tokens that is, that knowledge
// belongs to the external Dispatcher.
func (ch *Channel) ReceiveData(timeoutMillis int) ([]byte, error) {
	b, err := ch.recv.data.Pull(timeoutMillis)
	if err != nil {
		if err == ring.ErrTimeout {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return b, nil
}

// SkipToDataOffset fast-forwards this side's data-queue read cursor
// directly to dataOffset — typically ReceivedCommand.DataOffset —
// discarding any payload tokens in between without copying them out.
// This is the fast-forward half of the Command Header's data_offset
// field: a caller that doesn't recognize a command, or recognizes it
// but has no use for its payload, calls this instead of draining every
// token with ReceiveData, and still leaves the data queue positioned
// exactly where the next command's tokens begin.
func (ch *Channel) SkipToDataOffset(dataOffset uint32, timeoutMillis int) error {
	if err := ch.recv.data.SkipToWait(dataOffset, timeoutMillis); err != nil {
		if err == ring.ErrTimeout {
			return ErrTimeout
		}
		return err
	}
	return nil
}
