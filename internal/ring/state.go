package ring

import (
	"errors"
	"sync/atomic"
	"unsafe"
)

// ErrAgain is returned by non-blocking Push/Pull variants when the
// operation cannot complete immediately; callers retry after Wait.
var ErrAgain = errors.New("ring: operation would block")

// ErrTimeout is returned when a blocking wait exceeds its deadline.
var ErrTimeout = errors.New("ring: wait timed out")

// ErrClosed is returned once the peer has shut its side of the ring
// down; no further Push/Pull will ever succeed.
var ErrClosed = errors.New("ring: queue closed")

// ErrTooBig is returned when a single push request exceeds the ring's
// total capacity.
var ErrTooBig = errors.New("ring: payload larger than queue capacity")

// cacheLineWords pads each control field onto its own cache line so
// the producer and consumer sides, which each only touch their own
// field in the hot path, never false-share.
const cacheLineWords = 64/4 - 1

type ctrl struct {
	head   atomic.Uint32
	_      [cacheLineWords]uint32
	tail   atomic.Uint32
	_      [cacheLineWords]uint32
	closed atomic.Uint32
	_      [cacheLineWords]uint32
}

var ctrlSize = int(unsafe.Sizeof(ctrl{}))

func ctrlAt(buf []byte) *ctrl {
	return (*ctrl)(unsafe.Pointer(&buf[0]))
}

const (
	notClosed uint32 = 0
	isClosed  uint32 = 1
)
