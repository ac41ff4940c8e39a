//go:build windows

package shm

import (
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

func (a *Arena) create(excl bool) error {
	fd, err := createFileMapping(
		windows.InvalidHandle,
		nil,
		windows.PAGE_READWRITE,
		0,
		uint32(headerSize+a.size),
		a.name)
	if err != nil && (err != windows.ERROR_ALREADY_EXISTS || excl) {
		return err
	}
	a.fd = uintptr(fd)
	raw, err := windows.MapViewOfFile(fd, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE,
		0, 0, uintptr(headerSize+a.size))
	if err != nil {
		return err
	}
	a.buf = toSlice(raw, headerSize+a.size)
	for i := range a.buf {
		a.buf[i] = 0
	}
	return nil
}

func (a *Arena) open() error {
	fd, err := openFileMapping(windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, a.name)
	if err != nil {
		return err
	}
	a.fd = uintptr(fd)
	raw, err := windows.MapViewOfFile(fd, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, 0)
	if err != nil {
		return err
	}
	// peek the size field to know how much to map for real.
	peek := toSlice(raw, headerSize)
	total := int(peek[0]) | int(peek[1])<<8 | int(peek[2])<<16 | int(peek[3])<<24
	windows.UnmapViewOfFile(raw)
	raw, err = windows.MapViewOfFile(fd, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(headerSize+total))
	if err != nil {
		return err
	}
	a.buf = toSlice(raw, headerSize+total)
	return nil
}

func (a *Arena) close() error {
	if a.buf != nil {
		windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&a.buf[0])))
		a.buf = nil
	}
	if a.fd != 0 {
		windows.CloseHandle(windows.Handle(a.fd))
		a.fd = 0
	}
	return nil
}

// processAlive reports whether a process with the given pid is still
// running, mirroring the owner-collision check used by the teacher's
// createShm/openShm before attaching to a name it didn't expect.
func processAlive(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)
	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == uint32(windows.STATUS_PENDING)
}

var (
	modkernel32           = windows.NewLazyDLL("kernel32.dll")
	procOpenFileMapping   = modkernel32.NewProc("OpenFileMappingW")
	procCreateFileMapping = modkernel32.NewProc("CreateFileMappingW")
)

// createFileMapping wraps CreateFileMappingW directly: x/sys/windows's
// own helper cannot distinguish "got a valid handle" from "got a valid
// handle to a mapping that already existed", which callers need to
// know when excl is requested.
func createFileMapping(fhandle windows.Handle, sa *windows.SecurityAttributes,
	prot uint32, maxSizeHigh, maxSizeLow uint32, name string) (windows.Handle, error) {
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	r1, _, err := procCreateFileMapping.Call(uintptr(fhandle), uintptr(unsafe.Pointer(sa)),
		uintptr(prot), uintptr(maxSizeHigh), uintptr(maxSizeLow), uintptr(unsafe.Pointer(namep)))
	if r1 == 0 {
		if err == windows.ERROR_ALREADY_EXISTS {
			return 0, &os.PathError{Path: name, Op: "CreateFileMapping", Err: err}
		}
		return 0, os.NewSyscallError("CreateFileMapping", err)
	}
	if err == syscall.Errno(0) {
		err = nil
	}
	return windows.Handle(r1), err
}

func openFileMapping(access, inheritHandle uint32, name string) (windows.Handle, error) {
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	r1, _, err := procOpenFileMapping.Call(uintptr(access), uintptr(inheritHandle), uintptr(unsafe.Pointer(namep)))
	if r1 == 0 {
		if err == windows.ERROR_FILE_NOT_FOUND {
			return 0, &os.PathError{Path: name, Op: "OpenFileMapping", Err: err}
		}
		return 0, os.NewSyscallError("OpenFileMapping", err)
	}
	if err == syscall.Errno(0) {
		err = nil
	}
	return windows.Handle(r1), nil
}

func toSlice(p uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), size)
}

// Exists reports whether a named arena is currently mapped by any
// process.
func Exists(name string) (bool, error) {
	h, err := openFileMapping(windows.FILE_MAP_READ, 0, name)
	if err == nil {
		windows.CloseHandle(h)
		return true, nil
	}
	if err == windows.ERROR_FILE_NOT_FOUND {
		return false, nil
	}
	return false, err
}

// Unlink is a no-op on Windows: the section is destroyed automatically
// once the last handle to it closes.
func Unlink(_ string) error { return nil }
