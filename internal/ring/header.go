// Package ring implements the two SPSC ring-buffer structures that
// carry everything between the client and server processes: a
// fixed-width Command Queue and a byte-granular Data Queue. Both are
// laid out as explicit offset arithmetic over a raw shared buffer
// rather than cast through a Go struct, so the wire layout stays
// identical regardless of which side (32-bit client, 64-bit server)
// is reading it.
package ring

import "encoding/binary"

// HeaderSize is the fixed, little-endian-on-the-wire width of a
// Command Header: command id, flags, data offset and handle, each a
// uint32.
const HeaderSize = 16

// Header is a single command queue entry. It never crosses the wire
// as a cast struct — Encode/Decode always go through
// encoding/binary/LittleEndian so the layout is deterministic on both
// the 32-bit client and the 64-bit server.
type Header struct {
	CommandID  uint32
	Flags      uint32
	DataOffset uint32
	Handle     uint32
}

// Encode writes h into b, which must be at least HeaderSize bytes.
func (h Header) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.CommandID)
	binary.LittleEndian.PutUint32(b[4:8], h.Flags)
	binary.LittleEndian.PutUint32(b[8:12], h.DataOffset)
	binary.LittleEndian.PutUint32(b[12:16], h.Handle)
}

// Decode reads a Header out of b, which must be at least HeaderSize
// bytes.
func Decode(b []byte) Header {
	return Header{
		CommandID:  binary.LittleEndian.Uint32(b[0:4]),
		Flags:      binary.LittleEndian.Uint32(b[4:8]),
		DataOffset: binary.LittleEndian.Uint32(b[8:12]),
		Handle:     binary.LittleEndian.Uint32(b[12:16]),
	}
}
