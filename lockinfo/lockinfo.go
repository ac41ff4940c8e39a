// Package lockinfo tracks in-flight buffer locks so a resource
// wrapper can match nested or pipelined Lock calls to their Unlock in
// order, the Go realization of lockable_buffer.h's m_lockInfos queue
// (and Direct3DVolume9_LSS's identically-shaped m_lockInfoQueue).
// D3D9 resource wrappers themselves are out of scope here; this
// package gives whatever owns one a FIFO to keep the record in,
// addressed by the shadow id and/or heap allocation the wrapper
// resolved at Lock time.
package lockinfo

import (
	"errors"
	"sync"

	"github.com/NVIDIAGameWorks/bridge-remix/commands"
	"github.com/NVIDIAGameWorks/bridge-remix/heap"
)

// ErrEmpty is returned by Front/Pop when no lock is outstanding.
var ErrEmpty = errors.New("lockinfo: no lock outstanding")

// Record is one in-flight lock: the region being locked, the flags it
// was locked with, and wherever its bytes live — a shadow-mapped
// resource id for a client-local shadow copy, or a shared-heap
// allocation when the lock's data flows through the bridge heap, plus
// whatever discarded heap allocation the lock is replacing under
// D3DLOCK_DISCARD. A lock backed by a shadow copy leaves HeapAlloc at
// heap.InvalidId and vice versa.
type Record struct {
	Offset             uint32
	Size               uint32
	Flags              commands.Flags
	ShadowID           uint32
	HeapAlloc          heap.AllocId
	DiscardedHeapAlloc heap.AllocId
}

// FIFO is a mutex-guarded queue of outstanding Records for one
// resource wrapper. Locks are pushed at Lock time and popped at
// Unlock time in the same order, matching the source's queue<LockInfo>
// exactly: nested or pipelined Lock/Unlock pairs on the same resource
// resolve front-to-back regardless of which Unlock call fires first.
type FIFO struct {
	mu      sync.Mutex
	records []Record
}

// New returns an empty lock FIFO.
func New() *FIFO {
	return &FIFO{}
}

// Push records a newly taken lock.
func (f *FIFO) Push(r Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
}

// Front returns the oldest outstanding lock without removing it, the
// record an Unlock call inspects to decide how (or whether) to flush
// written bytes before calling Pop.
func (f *FIFO) Front() (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		return Record{}, ErrEmpty
	}
	return f.records[0], nil
}

// Pop removes the oldest outstanding lock, the counterpart to Front
// called once an Unlock has finished processing it.
func (f *FIFO) Pop() (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		return Record{}, ErrEmpty
	}
	r := f.records[0]
	f.records = f.records[1:]
	return r, nil
}

// Len reports the number of outstanding, un-Unlocked locks.
func (f *FIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}
