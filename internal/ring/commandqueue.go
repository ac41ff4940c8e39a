package ring

// CommandQueue is a fixed-capacity, single-producer/single-consumer
// ring of Command Headers over a byte slice view of shared memory.
// Producer and consumer live in different processes and never touch
// each other's half of the control block except through the atomics
// in ctrl, published at the front of the buffer.
type CommandQueue struct {
	buf      []byte
	c        *ctrl
	body     []byte // capacity*HeaderSize bytes directly after ctrl
	capacity uint32
	notEmpty signal
	notFull  signal
}

// CommandQueueSize returns the number of bytes a CommandQueue of the
// given element capacity needs from its backing arena.
func CommandQueueSize(capacity uint32) int {
	return ctrlSize + int(capacity)*HeaderSize
}

// NewCommandQueue lays out a fresh CommandQueue over buf, which must
// be at least CommandQueueSize(capacity) bytes and zeroed (as a freshly
// mapped arena is). name scopes the platform wait primitives.
func NewCommandQueue(name string, buf []byte, capacity uint32) (*CommandQueue, error) {
	return openCommandQueue(name, buf, capacity, true)
}

// OpenCommandQueue attaches to a CommandQueue the peer process already
// laid out.
func OpenCommandQueue(name string, buf []byte, capacity uint32) (*CommandQueue, error) {
	return openCommandQueue(name, buf, capacity, false)
}

func openCommandQueue(name string, buf []byte, capacity uint32, create bool) (*CommandQueue, error) {
	need := CommandQueueSize(capacity)
	if len(buf) < need {
		return nil, ErrTooBig
	}
	q := &CommandQueue{
		buf:      buf,
		c:        ctrlAt(buf),
		body:     buf[ctrlSize : ctrlSize+int(capacity)*HeaderSize],
		capacity: capacity,
	}
	notEmpty, notFull, err := newWaitPair(name, create, &q.c.tail, &q.c.head)
	if err != nil {
		return nil, err
	}
	q.notEmpty, q.notFull = notEmpty, notFull
	return q, nil
}

// used counts the headers in flight. head and tail run modulo
// 2*capacity (the slot is the index modulo capacity), so a full ring
// and an empty ring never publish the same pair of indices.
func (q *CommandQueue) used() uint32 {
	tail, head := q.c.tail.Load(), q.c.head.Load()
	return (tail + 2*q.capacity - head) % (2 * q.capacity)
}

// IsEmpty reports whether the queue currently holds no headers.
func (q *CommandQueue) IsEmpty() bool {
	return q.used() == 0
}

// IsClosed reports whether the peer has shut this queue down.
func (q *CommandQueue) IsClosed() bool {
	return q.c.closed.Load() == isClosed
}

// Close marks the queue closed and wakes anyone waiting on it, so a
// blocked peer observes shutdown instead of hanging forever.
func (q *CommandQueue) Close() {
	q.c.closed.Store(isClosed)
	q.notEmpty.set()
	q.notFull.set()
}

// Push appends h to the queue without blocking, returning ErrAgain if
// the ring is full.
func (q *CommandQueue) Push(h Header) error {
	if q.IsClosed() {
		return ErrClosed
	}
	if q.used() >= q.capacity {
		return ErrAgain
	}
	tail := q.c.tail.Load()
	h.Encode(q.body[(tail%q.capacity)*HeaderSize:])
	q.c.tail.Store((tail + 1) % (2 * q.capacity))
	q.notEmpty.set()
	return nil
}

// PushWait blocks up to timeoutMillis (negative means forever) until
// there is room, then pushes.
func (q *CommandQueue) PushWait(h Header, timeoutMillis int) error {
	for {
		head := q.c.head.Load()
		err := q.Push(h)
		if err != ErrAgain {
			return err
		}
		if err := q.notFull.wait(head, timeoutMillis); err != nil {
			return err
		}
	}
}

// Peek returns the next header without removing it from the ring.
func (q *CommandQueue) Peek() (Header, error) {
	if q.IsEmpty() {
		if q.IsClosed() {
			return Header{}, ErrClosed
		}
		return Header{}, ErrAgain
	}
	head := q.c.head.Load()
	return decodeAt(q.body, head%q.capacity), nil
}

// Pull removes and returns the next header, blocking up to
// timeoutMillis (negative means forever) if the queue is currently
// empty.
func (q *CommandQueue) Pull(timeoutMillis int) (Header, error) {
	for {
		tail := q.c.tail.Load()
		h, err := q.Peek()
		if err == nil {
			head := q.c.head.Load()
			q.c.head.Store((head + 1) % (2 * q.capacity))
			q.notFull.set()
			return h, nil
		}
		if err != ErrAgain {
			return Header{}, err
		}
		if werr := q.notEmpty.wait(tail, timeoutMillis); werr != nil {
			return Header{}, werr
		}
	}
}

func decodeAt(body []byte, idx uint32) Header {
	return Decode(body[idx*HeaderSize:])
}
