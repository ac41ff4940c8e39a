// Package shm implements the shared-memory arena that backs every
// cross-process structure in the bridge: command queues, data queues,
// the shared heap and the present semaphore all carve their storage out
// of an Arena rather than talking to the OS directly.
package shm

import (
	"encoding/binary"
	"errors"
	"os"
)

// ErrTooSmall is returned when a requested arena is smaller than the
// minimum bookkeeping region.
var ErrTooSmall = errors.New("shm: requested size too small")

// headerSize is the fixed prefix every arena carries ahead of its
// caller-visible bytes: total size, owner pid and user pid, each a
// little-endian uint32, deliberately decoded/encoded rather than cast
// through a struct so the layout stays identical across the 32/64-bit
// client/server boundary.
const headerSize = 12

// Arena is a named region of memory shared between the client and
// server processes. It owns the OS-level mapping (file mapping on
// Windows, POSIX shared memory elsewhere) and exposes the caller's
// portion as a plain byte slice sitting right after the bookkeeping
// header.
type Arena struct {
	name      string
	size      int
	owner     bool
	selfPid   int
	buf       []byte // full mapped region, including header
	fd        uintptr
	closeOnce bool
}

// Create maps a new named arena of the given size, failing if one
// already exists under that name unless excl is false.
func Create(name string, size int, excl bool) (*Arena, error) {
	if size <= 0 {
		return nil, ErrTooSmall
	}
	a := &Arena{name: name, size: size, owner: true, selfPid: os.Getpid()}
	if err := a.create(excl); err != nil {
		return nil, err
	}
	if owner := a.OwnerPid(); owner != 0 && owner != a.selfPid && processAlive(owner) {
		a.close()
		return nil, os.ErrPermission
	}
	binary.LittleEndian.PutUint32(a.buf[0:4], uint32(size))
	binary.LittleEndian.PutUint32(a.buf[4:8], uint32(a.selfPid))
	return a, nil
}

// Open attaches to an existing named arena created by the peer process.
func Open(name string) (*Arena, error) {
	a := &Arena{name: name, owner: false, selfPid: os.Getpid()}
	if err := a.open(); err != nil {
		return nil, err
	}
	a.size = int(binary.LittleEndian.Uint32(a.buf[0:4]))
	if user := a.UserPid(); user != 0 && user != a.selfPid && processAlive(user) {
		a.close()
		return nil, os.ErrPermission
	}
	binary.LittleEndian.PutUint32(a.buf[8:12], uint32(a.selfPid))
	return a, nil
}

// Name returns the arena's shared-object name.
func (a *Arena) Name() string { return a.name }

// Size returns the size in bytes of the caller-visible region, not
// counting the bookkeeping header.
func (a *Arena) Size() int { return a.size }

// OwnerPid returns the process id that created the arena.
func (a *Arena) OwnerPid() int {
	return int(binary.LittleEndian.Uint32(a.buf[4:8]))
}

// UserPid returns the process id of the attaching (non-owner) process,
// zero until Open has been called by the peer.
func (a *Arena) UserPid() int {
	return int(binary.LittleEndian.Uint32(a.buf[8:12]))
}

// IsOwner reports whether this process created the arena.
func (a *Arena) IsOwner() bool { return a.owner }

// Bytes returns the caller-visible region of the arena, sized exactly
// to what was requested at Create time.
func (a *Arena) Bytes() []byte {
	return a.buf[headerSize : headerSize+a.size]
}

// Close unmaps the arena. It does not unlink the underlying OS object,
// even on the owning process: on POSIX the named object stays until
// CloseAndUnlink or Unlink removes it, while Windows shared sections
// are destroyed automatically once the last handle closes.
func (a *Arena) Close() error {
	if a.closeOnce {
		return nil
	}
	a.closeOnce = true
	return a.close()
}

// CloseAndUnlink closes the arena and, on platforms that require it
// (POSIX), removes the backing named object so a later Create under
// the same name starts clean. On Windows this is equivalent to Close.
func (a *Arena) CloseAndUnlink() error {
	name := a.name
	if err := a.Close(); err != nil {
		return err
	}
	return Unlink(name)
}
