//go:build windows

package ring

import (
	"golang.org/x/sys/windows"
)

// winSignal wraps a named, auto-reset Windows Event, following the
// exact construction the teacher uses for its can-push/can-pop events.
type winSignal struct {
	h windows.Handle
}

func newSignal(name string, create bool) (signal, error) {
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	var h windows.Handle
	if create {
		h, err = windows.CreateEvent(nil, 0, 0, namep)
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

