//go:build linux

package presentsem

import (
	"math"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	futexWait uintptr = 0
	futexWake uintptr = 1
)

// futexSignal parks directly on the shared count word, the same
// no-named-object approach internal/ring's futexSignal takes.
type futexSignal struct {
	word *atomic.Uint32
}

func newSignal(_ string, _ bool, word *atomic.Uint32) (signal, error) {
	return &futexSignal{word: word}, nil
}

func (s *futexSignal) wait(expected uint32, timeoutMillis int) error {
	millis := timeoutMillis
	if millis < 0 {
		millis = math.MaxInt32
	}
	var ts unix.Timespec
	ts.Sec = int64(millis) / 1e3
	ts.Nsec = int64(millis) % 1e3 * 1e6
	r, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(s.word)),
		futexWait,
		uintptr(expected),
		uintptr(unsafe.Pointer(&ts)),
		0, 0)
	if int32(r) >= 0 {
		return nil
	}
	if errno == unix.ETIMEDOUT {
		return ErrTimeout
	}
	if errno == unix.EAGAIN {
		return nil
	}
	return errno
}

func (s *futexSignal) set() {
	_, _, _ = unix.Syscall(unix.SYS_FUTEX, uintptr(unsafe.Pointer(s.word)), futexWake, math.MaxInt32)
}

func (s *futexSignal) close() {}
