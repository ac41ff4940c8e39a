// Package heap implements the bridge's shared heap: a growable list of
// named shared-memory segments, each split into fixed-size chunks, used
// to move large frequently-updated resources (vertex/index buffers,
// textures) between client and server without copying them through the
// data queue. Allocation is client-driven; both processes read and
// write the mapped bytes directly once an AllocId has been published.
package heap

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var log logrus.FieldLogger = logrus.New().WithField("component", "heap")

// SetLogger overrides the package-level logger.
func SetLogger(l logrus.FieldLogger) { log = l }

// AllocId identifies one contiguous run of chunks within one segment.
// It is wire-safe: the low 32 bits are the starting chunk index, the
// high 32 the owning segment's id, so it survives the 32/64-bit
// client/server boundary the same way a Command Header's handle does.
type AllocId uint64

// InvalidId is never returned by a successful Allocate.
const InvalidId AllocId = 0

func makeAllocId(segID uint32, chunkStart int) AllocId {
	return AllocId(segID)<<32 | AllocId(uint32(chunkStart))
}

func (id AllocId) segmentID() uint32  { return uint32(id >> 32) }
func (id AllocId) chunkStart() uint32 { return uint32(id) }

// Policy selects which resource classes route through the shared heap
// instead of being copied through the data queue.
type Policy uint32

const (
	PolicyNone           Policy = 0
	PolicyTextures       Policy = 1 << 0
	PolicyDynamicBuffers Policy = 1 << 1
	PolicyStaticBuffers  Policy = 1 << 2
)

// Allows reports whether the policy routes the given class through the
// heap.
func (p Policy) Allows(class Policy) bool { return p&class != 0 }

var (
	// ErrOutOfMemory is returned by Allocate when no existing segment
	// has a free run large enough and growth is not possible.
	ErrOutOfMemory = errors.New("heap: out of memory")
	// ErrUnknownSegment is returned by Buf/Deallocate when an AllocId
	// names a segment this process has not attached.
	ErrUnknownSegment = errors.New("heap: unknown segment")
	// ErrNotOwner is returned by Allocate/Deallocate on a
	// heap opened with OpenHeap: only the owner drives allocation, per
	// the shared heap's client-driven contract.
	ErrNotOwner = errors.New("heap: only the owning process allocates")
)

// alloc records the chunk run backing one live AllocId, so Buf can
// return a slice sized to the original request rather than rounded
// up to the chunk boundary.
type alloc struct {
	segID      uint32
	chunkStart int
	numChunks  int
	size       int
}

// Heap is the Go realization of the source's SharedHeap: a mutex-
// guarded collection of segments, grown on demand up to maxSegments.
type Heap struct {
	mu sync.Mutex

	name      string
	owner     bool
	chunkSize int
	numChunks int // chunks per segment
	maxSegs   int

	segments map[uint32]*segment
	nextSeg  uint32

	allocs map[AllocId]alloc

	// onAddSegment, when set, is invoked after a new segment is
	// created so the owner can notify the peer with a
	// SharedHeap_AddSeg command carrying the segment's id and size.
	onAddSegment func(segID uint32, segmentSize int)
}

// NewHeap creates a fresh, empty heap. name scopes every segment's
// shared-memory object name. segmentSize and chunkSize follow
// bridge.Options' SharedHeapSegmentSize/SharedHeapChunkSize fields.
func NewHeap(name string, segmentSize, chunkSize, maxSegments int) *Heap {
	return &Heap{
		name:      name,
		owner:     true,
		chunkSize: chunkSize,
		numChunks: segmentSize / chunkSize,
		maxSegs:   maxSegments,
		segments:  make(map[uint32]*segment),
		allocs:    make(map[AllocId]alloc),
	}
}

// OpenHeap creates an attacher-side heap with no segments yet; call
// AttachSegment as SharedHeap_AddSeg notifications arrive.
func OpenHeap(name string) *Heap {
	return &Heap{
		name:     name,
		owner:    false,
		segments: make(map[uint32]*segment),
		allocs:   make(map[AllocId]alloc),
	}
}

// OnAddSegment installs the callback the owner uses to notify its peer
// of newly created segments.
func (h *Heap) OnAddSegment(fn func(segID uint32, segmentSize int)) {
	h.onAddSegment = fn
}

// AttachSegment opens the segment the owner created with the given id,
// called by the non-owning process after receiving a SharedHeap_AddSeg
// command.
func (h *Heap) AttachSegment(segID uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.segments[segID]; ok {
		return nil
	}
	seg, err := openSegment(h.name, segID)
	if err != nil {
		return err
	}
	h.segments[segID] = seg
	if h.chunkSize == 0 {
		h.chunkSize = seg.chunkSize
		h.numChunks = seg.numChunks
	}
	return nil
}

// Allocate reserves a contiguous run of chunks large enough for
// nbytes, growing the heap by one segment if no existing segment has
// room and the configured segment limit allows it.
func (h *Heap) Allocate(nbytes int) (AllocId, error) {
	if !h.owner {
		return InvalidId, ErrNotOwner
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	want := (nbytes + h.chunkSize - 1) / h.chunkSize
	if want == 0 {
		want = 1
	}

	for _, seg := range h.segments {
		if start, ok := seg.bitmap.findFreeRun(want); ok {
			seg.bitmap.setRange(start, want)
			id := makeAllocId(seg.id, start)
			h.allocs[id] = alloc{segID: seg.id, chunkStart: start, numChunks: want, size: nbytes}
			return id, nil
		}
	}

	if want > h.numChunks {
		log.WithField("bytes", nbytes).Error("single allocation larger than one segment")
		return InvalidId, ErrOutOfMemory
	}
	if len(h.segments) >= h.maxSegs {
		log.Warn("shared heap exhausted: segment limit reached")
		return InvalidId, ErrOutOfMemory
	}

	seg, err := h.growSegment()
	if err != nil {
		return InvalidId, err
	}
	start, ok := seg.bitmap.findFreeRun(want)
	if !ok {
		return InvalidId, ErrOutOfMemory
	}
	seg.bitmap.setRange(start, want)
	id := makeAllocId(seg.id, start)
	h.allocs[id] = alloc{segID: seg.id, chunkStart: start, numChunks: want, size: nbytes}
	return id, nil
}

func (h *Heap) growSegment() (*segment, error) {
	id := h.nextSeg + 1
	seg, err := createSegment(h.name, id, h.chunkSize, h.numChunks)
	if err != nil {
		return nil, err
	}
	h.nextSeg = id
	h.segments[id] = seg
	log.WithField("segment", id).Info("shared heap grew by one segment")
	if h.onAddSegment != nil {
		h.onAddSegment(id, h.chunkSize*h.numChunks)
	}
	return seg, nil
}

// Deallocate frees the run backing id. Callers must ensure no reader
// is still mid-read — the bridge enforces this via command ordering
// (a Dealloc command is only processed after every prior read), not
// by any lock this package holds.
func (h *Heap) Deallocate(id AllocId) error {
	if !h.owner {
		return ErrNotOwner
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.allocs[id]
	if !ok {
		return ErrUnknownSegment
	}
	seg, ok := h.segments[a.segID]
	if !ok {
		return ErrUnknownSegment
	}
	seg.bitmap.clearRange(a.chunkStart, a.numChunks)
	delete(h.allocs, id)
	return nil
}

// NoteAlloc records an allocation this process did not itself make —
// the attaching side calls this on receiving a SharedHeap_Alloc
// command, whose payload carries id and size, so its own Buf calls can
// return a correctly sized slice without owning the bitmap.
func (h *Heap) NoteAlloc(id AllocId, size int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	numChunks := 1
	if h.chunkSize > 0 {
		numChunks = (size + h.chunkSize - 1) / h.chunkSize
		if numChunks == 0 {
			numChunks = 1
		}
	}
	h.allocs[id] = alloc{segID: id.segmentID(), chunkStart: int(id.chunkStart()), numChunks: numChunks, size: size}
}

// NoteDealloc drops the attaching side's record of id, called on
// receiving a SharedHeap_Dealloc command. It never touches the
// segment's bitmap: only the owner mutates that.
func (h *Heap) NoteDealloc(id AllocId) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.allocs, id)
}

// Buf returns the mapped bytes for id in this process, sized to the
// original Allocate request rather than rounded up to a chunk
// boundary. Either side may call this once it has attached the
// relevant segment and, if it isn't the owner, recorded the
// allocation via NoteAlloc.
func (h *Heap) Buf(id AllocId) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	seg, ok := h.segments[id.segmentID()]
	if !ok {
		return nil, ErrUnknownSegment
	}
	a, ok := h.allocs[id]
	if !ok {
		return nil, ErrUnknownSegment
	}
	return seg.chunkBytes(a.chunkStart, a.numChunks)[:a.size], nil
}

// Close releases every attached segment's mapping.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for _, seg := range h.segments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
