//go:build !windows

package shm

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const defaultPerm = 0o666

func shmPath(name string) string {
	return filepath.Join("/dev/shm", name)
}

func (a *Arena) create(excl bool) error {
	flags := os.O_RDWR | os.O_CREATE
	if excl {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(shmPath(a.name), flags, defaultPerm)
	if err != nil {
		return err
	}
	defer f.Close()
	total := headerSize + a.size
	if err := f.Truncate(int64(total)); err != nil {
		return err
	}
	buf, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	a.buf = buf
	for i := range a.buf {
		a.buf[i] = 0
	}
	return nil
}

func (a *Arena) open() error {
	f, err := os.OpenFile(shmPath(a.name), os.O_RDWR, defaultPerm)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	buf, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	a.buf = buf
	return nil
}

func (a *Arena) close() error {
	if a.buf != nil {
		err := unix.Munmap(a.buf)
		a.buf = nil
		if err != nil {
			return err
		}
	}
	return nil
}

// processAlive reports whether a process with the given pid is still
// running, via the null-signal probe idiom.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// Exists reports whether a named arena's backing file is present.
func Exists(name string) (bool, error) {
	_, err := os.Stat(shmPath(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Unlink removes the named arena's backing file, as POSIX shared
// memory requires an explicit unlink once every process is done with
// it (unlike Windows, where last-handle-close is enough).
func Unlink(name string) error {
	err := os.Remove(shmPath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
