// Package msgchannel implements the auxiliary, low-volume channel the
// client and server use to relay window messages alongside the main
// command/data queues — focus changes and renderer-overlay events, the
// Go realization of the source's MessageChannelClient. Unlike the
// source, which posts real Win32 window messages to a registered
// thread id, this channel carries its fixed {type, param1, param2}
// record over the same internal/ring Data Queue primitive everything
// else in the bridge uses, so it needs no OS message-loop integration
// to be portable off Windows.
package msgchannel

import "encoding/binary"

// messageSize is the wire size of one Message: a 4-byte type tag
// followed by two 8-byte parameters, matching the {msg, wParam, lParam}
// triple MessageChannelClient::send carries, widened to 64 bits so a
// pointer-sized lParam survives the 32/64-bit client/server boundary.
const messageSize = 4 + 8 + 8

// Message is one relayed event: a type tag plus two generic
// parameters, the Go shape of the source's (msg, wParam, lParam)
// triple.
type Message struct {
	Type   uint32
	Param1 uint64
	Param2 uint64
}

// Well-known message types the bridge itself reacts to; a renderer
// overlay or input hook can register handlers for additional values
// without this package needing to know about them.
const (
	TypeFocusLost uint32 = iota + 1
	TypeFocusGained
	TypeOverlayToggled
)

func (m Message) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], m.Type)
	binary.LittleEndian.PutUint64(dst[4:12], m.Param1)
	binary.LittleEndian.PutUint64(dst[12:20], m.Param2)
}

func decodeMessage(src []byte) Message {
	return Message{
		Type:   binary.LittleEndian.Uint32(src[0:4]),
		Param1: binary.LittleEndian.Uint64(src[4:12]),
		Param2: binary.LittleEndian.Uint64(src[12:20]),
	}
}
