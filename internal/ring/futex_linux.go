//go:build linux

package ring

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

func futexWaitOn(addr *atomic.Uint32, ifValue uint32, millis int) error {
	if millis < 0 {
		millis = math.MaxInt32
	}
	var ts unix.Timespec
	ts.Sec = int64(millis) / 1e3
	ts.Nsec = int64(millis) % 1e3 * 1e6
	r, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWait,
		uintptr(ifValue),
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

func futexWakeOn(addr *atomic.Uint32, wakeAll bool) error {
	n := uintptr(1)
	if wakeAll {
		n = uintptr(math.MaxInt32)
	}
	_, _, errno := unix.Syscall(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWake, n)
	if errno != 0 && errno != unix.ENOENT {
		return errno
	}
	return nil
}
