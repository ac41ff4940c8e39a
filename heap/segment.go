package heap

import (
	"encoding/binary"
	"errors"
	"strconv"

	"github.com/NVIDIAGameWorks/bridge-remix/internal/shm"
)

// ErrSegmentTooSmall is returned when a segment's configured size
// can't hold even a single chunk alongside its bitmap.
var ErrSegmentTooSmall = errors.New("heap: segment too small for one chunk")

// segmentHeaderSize is the self-describing prefix every segment's
// arena carries ahead of its bitmap and chunk body: chunk size and
// chunk count, both little-endian uint32s, so an attaching process
// that only knows the segment's name can lay it out identically
// without being told the heap's configuration out of band.
const segmentHeaderSize = 8

// segment is one named shared file-mapping split into fixed-size
// chunks, the unit the heap grows by. The owning process allocates
// from the segment's bitmap; an attaching process only ever reads it.
type segment struct {
	id        uint32
	arena     *shm.Arena
	chunkSize int
	numChunks int
	bitmap    *bitmap
	body      []byte
}

func segmentBodyOffset(numChunks int) int {
	return segmentHeaderSize + bitmapBytes(numChunks)
}

// createSegment lays out a fresh segment holding numChunks chunks of
// chunkSize bytes, named for id within heapName.
func createSegment(heapName string, id uint32, chunkSize, numChunks int) (*segment, error) {
	if numChunks <= 0 {
		return nil, ErrSegmentTooSmall
	}
	total := segmentBodyOffset(numChunks) + numChunks*chunkSize
	arena, err := shm.Create(segmentArenaName(heapName, id), total, true)
	if err != nil {
		return nil, err
	}
	buf := arena.Bytes()
	binary.LittleEndian.PutUint32(buf[0:4], uint32(chunkSize))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(numChunks))
	return newSegment(id, arena, chunkSize, numChunks), nil
}

// openSegment attaches to a segment the owner already created,
// reading its self-described chunk layout from the arena header.
func openSegment(heapName string, id uint32) (*segment, error) {
	arena, err := shm.Open(segmentArenaName(heapName, id))
	if err != nil {
		return nil, err
	}
	buf := arena.Bytes()
	chunkSize := int(binary.LittleEndian.Uint32(buf[0:4]))
	numChunks := int(binary.LittleEndian.Uint32(buf[4:8]))
	return newSegment(id, arena, chunkSize, numChunks), nil
}

func newSegment(id uint32, arena *shm.Arena, chunkSize, numChunks int) *segment {
	buf := arena.Bytes()
	bmBuf := buf[segmentHeaderSize : segmentHeaderSize+bitmapBytes(numChunks)]
	body := buf[segmentBodyOffset(numChunks):]
	return &segment{
		id:        id,
		arena:     arena,
		chunkSize: chunkSize,
		numChunks: numChunks,
		bitmap:    newBitmap(bmBuf, numChunks),
		body:      body,
	}
}

func segmentArenaName(heapName string, id uint32) string {
	return heapName + "_seg" + strconv.FormatUint(uint64(id), 10)
}

func (s *segment) chunkBytes(start, n int) []byte {
	off := start * s.chunkSize
	return s.body[off : off+n*s.chunkSize]
}

func (s *segment) close() error {
	return s.arena.Close()
}
