//go:build windows

package presentsem

import (
	"sync/atomic"

	"golang.org/x/sys/windows"
)

// winSignal wraps a named, manual-reset Windows Event: manual-reset so
// a Release that lands while nobody is waiting still wakes the next
// Wait to find the event set, instead of being lost the way an
// auto-reset event would lose it before anyone observes it, matching
// a counting semaphore's "releases accumulate" contract.
type winSignal struct {
	h windows.Handle
}

func newSignal(name string, create bool, _ *atomic.Uint32) (signal, error) {
	namep, err := windows.UTF16PtrFromString(name + "-sem")
	if err != nil {
		return nil, err
	}
	var h windows.Handle
	if create {
		h, err = windows.CreateEvent(nil, 1, 0, namep)
	} else {
		h, err = windows.OpenEvent(windows.SYNCHRONIZE|windows.EVENT_MODIFY_STATE, false, namep)
	}
	if err != nil {
		return nil, err
	}
	return &winSignal{h: h}, nil
}

func (s *winSignal) wait(_ uint32, timeoutMillis int) error {
	millis := uint32(windows.INFINITE)
	if timeoutMillis >= 0 {
		millis = uint32(timeoutMillis)
	}
	r, err := windows.WaitForSingleObject(s.h, millis)
	if err != nil {
		return err
	}
	if r == uint32(windows.WAIT_TIMEOUT) {
		return ErrTimeout
	}
	windows.ResetEvent(s.h)
	return nil
}

func (s *winSignal) set() {
	windows.SetEvent(s.h)
}

func (s *winSignal) close() {
	if s.h != 0 {
		windows.CloseHandle(s.h)
		s.h = 0
	}
}
