package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/NVIDIAGameWorks/bridge-remix/commands"
	"github.com/NVIDIAGameWorks/bridge-remix/internal/ring"
)

var commandLog = componentLog("command")

// Command is the Go realization of the source's BridgeCommand<T>
// scoped transaction. C++ relies on the destructor to always run;
// Go has none, so WithCommand plays that role instead: it opens the
// channel's data batch before invoking the closure and, on every exit
// path including a recovered panic, closes the batch and pushes the
// command header with the retry policy the destructor implements.
type Command struct {
	ch         *Channel
	id         commands.ID
	flags      commands.Flags
	handle     uint32
	batchStart int64
}

// WithCommand opens a scoped command transaction on ch. Only one
// Command may be open on a channel at a time; a nested call returns
// ErrBusy rather than the assertion-failure/throw the source uses,
// since Go has no destructor to unwind through.
func WithCommand(ch *Channel, id commands.ID, handle uint32, flags commands.Flags, fn func(*Command) error) error {
	if !ch.mu.TryLock() {
		return ErrBusy
	}
	defer ch.mu.Unlock()

	running := ch.Running()
	if running {
		ch.send.data.BeginBatch()
	}

	cmd := &Command{ch: ch, id: id, flags: flags, handle: handle, batchStart: int64(ch.send.data.Pos())}

	var panicVal any
	var fnErr error
	func() {
		defer func() {
			panicVal = recover()
		}()
		fnErr = fn(cmd)
	}()

	if !running {
		if panicVal != nil {
			panic(panicVal)
		}
		return fnErr
	}

	ch.send.data.EndBatch()

	// The channel went down while the closure ran: abandon the batch
	// and never push its header.
	if !ch.Running() {
		if panicVal != nil {
			panic(panicVal)
		}
		return fnErr
	}

	header := ring.Header{
		CommandID:  uint32(id),
		Flags:      uint32(cmd.flags),
		DataOffset: ch.send.data.Pos(),
		Handle:     handle,
	}

	var pushErr error
	retries := 0
	maxRetries := ch.opts.CommandRetries
	for {
		pushErr = ch.send.cmd.Push(header)
		if pushErr == nil {
			break
		}
		if !ch.Running() {
			break
		}
		retries++
		if !ch.opts.InfiniteRetries && retries > maxRetries {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if pushErr != nil && ch.Running() {
		commandLog.WithField("command", id.String()).Error(
			"command could not be sent, disabling channel and falling back to client rendering")
		ch.Disable()
		pushErr = nil
	} else if pushErr == nil {
		ch.recordHistory(header)
		if retries > 1 {
			commandLog.WithField("command", id.String()).WithField("retries", retries).Debug(
				"command took retries to send")
		}
	}

	if panicVal != nil {
		panic(panicVal)
	}
	if fnErr != nil {
		return fnErr
	}
	return pushErr
}

// syncDataQueue implements the overflow-avoidance protocol from the
// source's BridgeCommand::syncDataQueue: before writing expectedBytes
// more bytes of data, make sure doing so won't lap the consumer's
// last-known read position. If it would, the producer blocks on the
// present semaphore-style back-pressure signal until the consumer has
// made enough progress, exactly mirroring the five numbered steps in
// the original.
func (c *Command) syncDataQueue(expectedBytes int, posResetOnLastIndex bool, waitForProgress func() error) error {
	serverPos := c.ch.sync.serverDataPos.Load()
	currPos := int64(c.ch.send.data.Pos())
	totalSize := int64(c.ch.send.data.TotalSize())

	need := int64(expectedBytes)
	if need == 0 {
		need = 1
	}
	expectedPos := currPos + need - 1

	if expectedPos >= totalSize {
		if posResetOnLastIndex {
			expectedPos = need - 1
		} else {
			expectedPos -= totalSize
		}
		c.ch.sync.resetPosRequired.Store(1)
	}

	overrideMet := false
	switch {
	case currPos < serverPos && expectedPos >= serverPos:
		c.ch.sync.clientExpectedPos.Store(currPos - 1)
		overrideMet = true
	case currPos > serverPos && expectedPos >= serverPos && expectedPos < currPos:
		c.ch.sync.clientExpectedPos.Store(expectedPos)
		overrideMet = true
	}

	if !overrideMet {
		return nil
	}

	commandLog.Warn("data queue override condition triggered")
	if c.batchStart <= c.ch.sync.clientExpectedPos.Load() {
		commandLog.Error("command's data batch size is too large and override could not be prevented")
		c.ch.sync.clientExpectedPos.Store(-1)
		c.ch.sync.resetPosRequired.Store(0)
		return fmt.Errorf("%w: data batch too large to avoid queue override", ErrProtocol)
	}

	if waitForProgress != nil {
		maxRetries := c.ch.opts.CommandRetries
		retries := 0
		var err error
		for {
			err = waitForProgress()
			if err == nil {
				break
			}
			retries++
			if retries >= maxRetries {
				commandLog.Error("max retries reached waiting on the server to process enough data to prevent an override")
				break
			}
			commandLog.Warn("waiting on server to process enough data from data queue to prevent override")
		}
	}

	c.ch.sync.clientExpectedPos.Store(-1)
	c.ch.sync.resetPosRequired.Store(0)
	commandLog.Info("data queue override condition resolved")
	return nil
}

// SendData pushes a single length-framed token into the channel's
// data queue, synchronizing against the consumer's read position
// first so the write can never lap it.
func (c *Command) SendData(data []byte) error {
	if !c.ch.Running() {
		return nil
	}
	if err := c.syncDataQueue(len(data), len(data) > 0, c.ch.overflowWait); err != nil {
		return err
	}
	if err := c.ch.send.data.PushBytes(data); err != nil {
		commandLog.Error("data queue send failed: ", err)
		if errors.Is(err, ring.ErrTooBig) {
			return fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		return err
	}
	return nil
}

// SendMany pushes several tokens as one synchronized, internally
// batched group.
func (c *Command) SendMany(items ...[]byte) error {
	if !c.ch.Running() {
		return nil
	}
	total := 0
	for _, it := range items {
		total += len(it)
	}
	if err := c.syncDataQueue(total, false, c.ch.overflowWait); err != nil {
		return err
	}
	if err := c.ch.send.data.PushMany(items...); err != nil {
		if errors.Is(err, ring.ErrTooBig) {
			return fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		return err
	}
	return nil
}

// MarkHeapResident ORs commands.FlagDataInHeap onto this command's
// header flags, for a closure that decides mid-transaction that its
// payload lives in the shared heap rather than inline in the data
// queue — the flag spec.md's buffer-unlock scenario carries, set here
// instead of at WithCommand's call site since whether a given lock's
// payload ended up heap-resident is exactly the thing the closure is
// deciding.
func (c *Command) MarkHeapResident() { c.flags |= commands.FlagDataInHeap }

// MarkDataReserved ORs commands.FlagDataReserved onto this command's
// header flags, for a closure whose payload was already written to a
// data-queue offset reserved ahead of time rather than appended
// inline by SendData/SendMany.
func (c *Command) MarkDataReserved() { c.flags |= commands.FlagDataReserved }

// MarkServerDataPos publishes the server's current data queue read
// position. Called from the server side of a channel after it pulls
// and processes a command, this is the counterpart value the client's
// syncDataQueue compares against.
func (ch *Channel) MarkServerDataPos(pos int64) {
	ch.sync.serverDataPos.Store(pos)
}
