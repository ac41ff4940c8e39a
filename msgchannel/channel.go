package msgchannel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NVIDIAGameWorks/bridge-remix/internal/ring"
	"github.com/NVIDIAGameWorks/bridge-remix/internal/shm"
)

var log logrus.FieldLogger = logrus.New().WithField("component", "msgchannel")

// SetLogger overrides the package-level logger.
func SetLogger(l logrus.FieldLogger) { log = l }

// normalRetryInterval bounds how long Send waits for room on a full
// queue while the owning window has focus; infiniteRetries removes the
// bound instead, per the focus contract.
const normalRetryInterval = 10 * time.Second

// HandlerFunc processes one dispatched message's parameters and returns
// nothing — the Go shape of the source's registerHandler callback,
// minus the bool return the source never actually exploited.
type HandlerFunc func(param1, param2 uint64)

// Channel is a bidirectional, fixed-message auxiliary queue layered
// over a dedicated shared-memory arena — one per logical pairing (the
// client's own focus relay, the renderer-overlay relay), mirroring the
// source keeping a separate MessageChannelClient per purpose.
type Channel struct {
	arena *shm.Arena
	send  *ring.DataQueue
	recv  *ring.DataQueue

	mu       sync.Mutex
	handlers map[uint32]HandlerFunc

	infiniteRetries atomic.Bool
}

// NewChannel lays out a fresh Channel over a newly created arena,
// sized for capacity messages in each direction. The creating process
// becomes the owner.
func NewChannel(name string, capacity uint32) (*Channel, error) {
	return openChannel(name, capacity, true)
}

// OpenChannel attaches to a Channel the peer process already created.
func OpenChannel(name string, capacity uint32) (*Channel, error) {
	return openChannel(name, capacity, false)
}

func openChannel(name string, capacity uint32, owner bool) (*Channel, error) {
	// Each message travels as a data-queue token with a 4-byte length
	// prefix; the extra 4 bytes keep the ring from ever being full.
	dataCap := capacity*(messageSize+4) + 4
	dirSize := ring.DataQueueSize(dataCap)
	total := 2 * dirSize

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
	dir0Buf := buf[:dirSize]
	dir1Buf := buf[dirSize:]

	var dir0, dir1 *ring.DataQueue
	if owner {
		dir0, err = ring.NewDataQueue(name+"_0", dir0Buf, dataCap)
		if err == nil {
			dir1, err = ring.NewDataQueue(name+"_1", dir1Buf, dataCap)
		}
	} else {
		dir0, err = ring.OpenDataQueue(name+"_0", dir0Buf, dataCap)
		if err == nil {
			dir1, err = ring.OpenDataQueue(name+"_1", dir1Buf, dataCap)
		}
	}
	if err != nil {
		arena.Close()
		return nil, err
	}

	ch := &Channel{arena: arena, handlers: make(map[uint32]HandlerFunc)}
	if owner {
		ch.send, ch.recv = dir0, dir1
	} else {
		ch.send, ch.recv = dir1, dir0
	}
	return ch, nil
}

// RegisterHandler installs fn to run when Dispatch pulls a message of
// the given type.
func (c *Channel) RegisterHandler(msgType uint32, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = fn
}

// Send relays one message to the peer, waiting up to
// normalRetryInterval for room on a full queue (then failing with the
// ring's timeout error) unless SetInfiniteRetries(true) is in effect,
// in which case it blocks indefinitely — the focus contract's
// "infinite retries while alt-tabbed" behavior.
func (c *Channel) Send(msgType uint32, param1, param2 uint64) error {
	var wire [messageSize]byte
	Message{Type: msgType, Param1: param1, Param2: param2}.encode(wire[:])

	timeout := int(normalRetryInterval.Milliseconds())
	if c.infiniteRetries.Load() {
		timeout = -1
	}
	return c.send.PushBytesWait(wire[:], timeout)
}

// SetInfiniteRetries toggles the focus contract: true disables
// timeouts on Send (call on WM_KILLFOCUS-equivalent focus loss), false
// restores the normal retry interval (call on focus gain).
func (c *Channel) SetInfiniteRetries(v bool) {
	c.infiniteRetries.Store(v)
	if v {
		log.Info("window lost focus, switching message channel to infinite retries")
	} else {
		log.Info("window regained focus, restoring normal message channel retries")
	}
}

// Dispatch blocks up to timeoutMillis (negative forever) for the next
// message and invokes its registered handler, if any. A message with
// no registered handler is silently dropped, the same tolerance the
// source's onMessage dispatch gives unrecognized window messages.
func (c *Channel) Dispatch(timeoutMillis int) error {
	raw, err := c.recv.Pull(timeoutMillis)
	if err != nil {
		return err
	}
	msg := decodeMessage(raw)

	c.mu.Lock()
	fn := c.handlers[msg.Type]
	c.mu.Unlock()
	if fn != nil {
		fn(msg.Param1, msg.Param2)
	}
	return nil
}

// Close tears the channel down and releases its arena.
func (c *Channel) Close() error {
	c.send.Close()
	c.recv.Close()
	return c.arena.Close()
}
