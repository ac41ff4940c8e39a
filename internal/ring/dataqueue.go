package ring

import "encoding/binary"

// rewindMark is written in place of a length prefix when the producer
// has to wrap before the ring's physical end, exactly as the teacher's
// kaze.rewindMark sentinel does.
const rewindMark uint32 = 0xFFFFFFFF

const tokenAlign = 4

func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// DataQueue is a byte-granular single-producer/single-consumer ring
// carrying variable-length, length-prefixed tokens. Writes can be
// grouped into a batch with BeginBatch/EndBatch so the consumer is
// only woken once per logical command instead of once per token,
// mirroring the source's begin_batch/end_batch pair.
type DataQueue struct {
	buf      []byte
	c        *ctrl
	body     []byte
	capacity uint32
	notEmpty signal
	notFull  signal
	batching bool
}

// DataQueueSize returns the bytes a DataQueue of the given capacity
// needs from its backing arena.
func DataQueueSize(capacity uint32) int {
	return ctrlSize + int(capacity)
}

// NewDataQueue lays out a fresh DataQueue over buf.
func NewDataQueue(name string, buf []byte, capacity uint32) (*DataQueue, error) {
	return openDataQueue(name, buf, capacity, true)
}

// OpenDataQueue attaches to a DataQueue the peer already laid out.
func OpenDataQueue(name string, buf []byte, capacity uint32) (*DataQueue, error) {
	return openDataQueue(name, buf, capacity, false)
}

func openDataQueue(name string, buf []byte, capacity uint32, create bool) (*DataQueue, error) {
	need := DataQueueSize(capacity)
	if len(buf) < need {
		return nil, ErrTooBig
	}
	q := &DataQueue{
		buf:      buf,
		c:        ctrlAt(buf),
		body:     buf[ctrlSize : ctrlSize+int(capacity)],
		capacity: capacity,
	}
	notEmpty, notFull, err := newWaitPair(name, create, &q.c.tail, &q.c.head)
	if err != nil {
		return nil, err
	}
	q.notEmpty, q.notFull = notEmpty, notFull
	return q, nil
}

func (q *DataQueue) used() uint32 {
	tail, head := q.c.tail.Load(), q.c.head.Load()
	if tail >= head {
		return tail - head
	}
	return q.capacity - head + tail
}

// IsClosed reports whether the peer has shut this queue down.
func (q *DataQueue) IsClosed() bool { return q.c.closed.Load() == isClosed }

// Close marks the queue closed and wakes any blocked waiter.
func (q *DataQueue) Close() {
	q.c.closed.Store(isClosed)
	q.notEmpty.set()
	q.notFull.set()
}

// Pos returns the producer's current write offset within the ring
// body — the same quantity the source calls get_data_pos(), used by
// the overflow-avoidance sync protocol in the bridge package.
func (q *DataQueue) Pos() uint32 { return q.c.tail.Load() }

// TotalSize returns the ring body's capacity in bytes.
func (q *DataQueue) TotalSize() uint32 { return q.capacity }

// HeadPos returns the consumer's current read offset within the ring
// body, published by the consuming side so the producer's
// overflow-avoidance check can tell how far it is safe to write.
func (q *DataQueue) HeadPos() uint32 { return q.c.head.Load() }

// BeginBatch suppresses the consumer wake-up notification until a
// matching EndBatch, so a command that writes several tokens only
// wakes the other side once.
func (q *DataQueue) BeginBatch() { q.batching = true }

// EndBatch closes the current batch and, if anything was written
// during it, wakes the consumer. Called with no pending writes it is
// a harmless no-op, per the empty-batch contract: data_offset simply
// stays equal to wherever the previous command already left it.
func (q *DataQueue) EndBatch() {
	if !q.batching {
		return
	}
	q.batching = false
	if q.used() > 0 {
		q.notEmpty.set()
	}
}

// tokenSpace returns the aligned on-wire size of a payload of n bytes,
// including its 4-byte length prefix.
func tokenSpace(n int) uint32 {
	return uint32(alignUp(4+n, tokenAlign))
}

// PushBytes writes one length-framed token without blocking, failing
// with ErrAgain if there isn't room and ErrTooBig if the token could
// never fit even in an empty ring.
func (q *DataQueue) PushBytes(data []byte) error {
	if q.IsClosed() {
		return ErrClosed
	}
	need := tokenSpace(len(data))
	if need >= q.capacity {
		return ErrTooBig
	}

	// A write that does not fit before the physical end also consumes
	// the gap up to it. At least one byte always stays free, since a
	// completely full ring would read back as empty (tail == head).
	tail := q.c.tail.Load()
	remain := q.capacity - tail
	wraps := need > remain
	if wraps {
		need += remain
	}
	if free := q.capacity - q.used(); free <= need {
		return ErrAgain
	}

	writeAt := tail
	if wraps {
		binary.LittleEndian.PutUint32(q.body[tail:], rewindMark)
		writeAt = 0
	}
	binary.LittleEndian.PutUint32(q.body[writeAt:], uint32(len(data)))
	copy(q.body[writeAt+4:], data)
	q.c.tail.Store((tail + need) % q.capacity)

	if !q.batching {
		q.notEmpty.set()
	}
	return nil
}

// PushBytesWait blocks up to timeoutMillis (negative forever) until
// there's room, then pushes.
func (q *DataQueue) PushBytesWait(data []byte, timeoutMillis int) error {
	for {
		head := q.c.head.Load()
		err := q.PushBytes(data)
		if err != ErrAgain {
			return err
		}
		if err := q.notFull.wait(head, timeoutMillis); err != nil {
			return err
		}
	}
}

// PushMany writes several tokens as a single internally-batched
// group: equivalent to BeginBatch, one PushBytes per item, EndBatch.
func (q *DataQueue) PushMany(items ...[]byte) error {
	wasBatching := q.batching
	q.BeginBatch()
	for _, it := range items {
		if err := q.PushBytes(it); err != nil {
			if !wasBatching {
				q.batching = false
			}
			return err
		}
	}
	if !wasBatching {
		q.EndBatch()
	}
	return nil
}

// Pull removes and returns the next token, blocking up to
// timeoutMillis (negative forever) if the queue is currently empty.
func (q *DataQueue) Pull(timeoutMillis int) ([]byte, error) {
	for {
		tail := q.c.tail.Load()
		b, err := q.tryPull()
		if err == nil {
			return b, nil
		}
		if err != ErrAgain {
			return nil, err
		}
		if werr := q.notEmpty.wait(tail, timeoutMillis); werr != nil {
			return nil, werr
		}
	}
}

func (q *DataQueue) tryPull() ([]byte, error) {
	used := q.used()
	if used == 0 {
		if q.IsClosed() {
			return nil, ErrClosed
		}
		return nil, ErrAgain
	}
	pos, n := q.nextTokenLen()
	out := make([]byte, n)
	copy(out, q.body[pos+4:pos+4+n])
	q.advanceHead(pos, n)
	q.notFull.set()
	return out, nil
}

// nextTokenLen returns the position and length of the token currently
// at the read cursor, resolving a rewind marker first if the cursor
// sits right at one — the same check tryPull inlines, factored out so
// SkipTo can reuse it without copying any payload bytes out.
func (q *DataQueue) nextTokenLen() (pos uint32, n uint32) {
	pos = q.c.head.Load()
	n = binary.LittleEndian.Uint32(q.body[pos:])
	if n == rewindMark {
		pos = 0
		n = binary.LittleEndian.Uint32(q.body[pos:])
	}
	return pos, n
}

// advanceHead moves the read cursor past the token at pos/n, crediting
// the physical-wrap gap tryPull skips over when the token was read
// after a rewind marker.
func (q *DataQueue) advanceHead(pos, n uint32) {
	head := q.c.head.Load()
	consumed := tokenSpace(int(n))
	if pos == 0 && head != 0 {
		consumed += q.capacity - head
	}
	q.c.head.Store((head + consumed) % q.capacity)
}

// SkipTo fast-forwards the read cursor to the given absolute ring
// position, discarding whatever whole tokens lie in between without
// copying their payloads out. This is the consumer half of
// Header.DataOffset's wire contract ("the data-queue write position
// at which the command's payload ends — the consumer uses this to
// detect and fast-forward over payload bytes it did not consume"): a
// caller that doesn't recognize, or doesn't need, a command's payload
// calls SkipTo(header.DataOffset) instead of pulling every token
// individually. Walks token-by-token the same way tryPull does,
// including its rewind-mark handling, since the target offset can lie
// on the far side of a physical wrap.
func (q *DataQueue) SkipTo(offset uint32) error {
	for q.c.head.Load() != offset {
		if q.used() == 0 {
			if q.IsClosed() {
				return ErrClosed
			}
			return ErrAgain
		}
		pos, n := q.nextTokenLen()
		q.advanceHead(pos, n)
	}
	q.notFull.set()
	return nil
}

// SkipToWait is SkipTo with a blocking wait for more tokens to arrive
// if the target offset isn't reachable yet.
func (q *DataQueue) SkipToWait(offset uint32, timeoutMillis int) error {
	for {
		tail := q.c.tail.Load()
		err := q.SkipTo(offset)
		if err != ErrAgain {
			return err
		}
		if werr := q.notEmpty.wait(tail, timeoutMillis); werr != nil {
			return werr
		}
	}
}

// PullInto is like Pull but copies the token into dst, returning the
// number of bytes written and avoiding an allocation per call.
func (q *DataQueue) PullInto(dst []byte, timeoutMillis int) (int, error) {
	b, err := q.Pull(timeoutMillis)
	if err != nil {
		return 0, err
	}
	n := copy(dst, b)
	return n, nil
}
