// Package presentsem implements the present semaphore: a named,
// interprocess counting semaphore the client and server use to pace
// Present() calls against each other, the Go realization of the
// source's NamedSemaphore("Present", ...) pair in d3d9_lss.cpp and
// server/main.cpp. Its storage lives in a shared-memory arena like
// every other cross-process structure in the bridge, with the actual
// blocking wait handled by a platform-specific signal exactly as
// internal/ring's data and command queues do.
package presentsem

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/NVIDIAGameWorks/bridge-remix/internal/shm"
)

var log logrus.FieldLogger = logrus.New().WithField("component", "presentsem")

// SetLogger overrides the package-level logger.
func SetLogger(l logrus.FieldLogger) { log = l }

// ErrTimeout is returned by Wait when timeoutMillis elapses before a
// unit becomes available.
var ErrTimeout = errors.New("presentsem: wait timed out")

// ErrClosed is returned by Wait once the peer has torn the semaphore
// down.
var ErrClosed = errors.New("presentsem: semaphore closed")

// headerSize lays out three shared words: the live count, the ceiling
// it counts up to, and a closed flag, each a plain atomic.Uint32
// sitting directly in the arena rather than cast through a struct.
const headerSize = 4 + 4 + 4

// Semaphore is a counting semaphore backed by shared memory, counting
// down from max to 0 as frames are presented and back up as the peer
// releases them, per GlobalOptions::presentSemaphoreMaxFrames.
type Semaphore struct {
	arena  *shm.Arena
	count  *atomic.Uint32
	max    *atomic.Uint32
	closed *atomic.Uint32
	sig    signal
}

// New lays out a fresh named semaphore over a newly created arena,
// seeded at initial and capped at max — the owner's analogue of
// `new NamedSemaphore(name, initial, max)`.
func New(name string, initial, max uint32) (*Semaphore, error) {
	arena, err := shm.Create(name, headerSize, true)
	if err != nil {
		return nil, err
	}
	s := newSemaphore(arena)
	s.count.Store(initial)
	s.max.Store(max)

	sig, err := newSignal(name, true, s.count)
	if err != nil {
		arena.Close()
		return nil, err
	}
	s.sig = sig
	return s, nil
}

// Open attaches to a semaphore the peer process already created.
func Open(name string) (*Semaphore, error) {
	arena, err := shm.Open(name)
	if err != nil {
		return nil, err
	}
	s := newSemaphore(arena)

	sig, err := newSignal(name, false, s.count)
	if err != nil {
		arena.Close()
		return nil, err
	}
	s.sig = sig
	return s, nil
}

func newSemaphore(arena *shm.Arena) *Semaphore {
	buf := arena.Bytes()
	return &Semaphore{
		arena:  arena,
		count:  (*atomic.Uint32)(unsafe.Pointer(&buf[0])),
		max:    (*atomic.Uint32)(unsafe.Pointer(&buf[4])),
		closed: (*atomic.Uint32)(unsafe.Pointer(&buf[8])),
	}
}

// Max returns the semaphore's ceiling, e.g. presentSemaphoreMaxFrames.
func (s *Semaphore) Max() uint32 { return s.max.Load() }

// Value returns the current count without blocking.
func (s *Semaphore) Value() uint32 { return s.count.Load() }

// TryWait attempts to acquire the semaphore without blocking.
func (s *Semaphore) TryWait() bool {
	for {
		cur := s.count.Load()
		if cur == 0 {
			return false
		}
		if s.count.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Wait blocks up to timeoutMillis (negative means forever) until a
// unit is available, then acquires it — the Go shape of
// NamedSemaphore::wait, used by syncOnPresent's retry loop.
func (s *Semaphore) Wait(timeoutMillis int) error {
	for {
		if s.TryWait() {
			return nil
		}
		if s.closed.Load() != 0 {
			log.Warn("present semaphore closed while a waiter was parked")
			return ErrClosed
		}
		if err := s.sig.wait(0, timeoutMillis); err != nil {
			return err
		}
	}
}

// Release returns a unit to the semaphore, capped at Max — the Go
// shape of NamedSemaphore::release, called once per completed Present.
func (s *Semaphore) Release() {
	for {
		cur := s.count.Load()
		max := s.max.Load()
		if cur >= max {
			break
		}
		if s.count.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	s.sig.set()
}

// Close tears down the semaphore and wakes anyone blocked in Wait.
func (s *Semaphore) Close() error {
	s.closed.Store(1)
	s.sig.set()
	s.sig.close()
	return s.arena.Close()
}
