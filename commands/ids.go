// Package commands enumerates the bridge-level command identifiers
// carried in a Command Header. The full device-dispatch command set
// (per-D3D9-method opcodes) is owned by the external dispatcher and
// out of scope here; this package only names the handful of IDs the
// transport substrate itself needs to hand out: the handshake
// sequence, the shared heap's segment/allocation lifecycle, and
// resource teardown notification.
package commands

import "strconv"

// ID identifies a bridge-level command. Values deliberately avoid the
// 0..N range the external dispatcher's opcode table occupies, the
// same separation the original command enum draws between its
// Bridge_* members and the Api_*/IDirect3D*_* members.
type ID uint32

const (
	// Invalid is never a legal command id on the wire.
	Invalid ID = 0

	// Syn is sent client to server to begin the handshake; its
	// payload is the client process handle.
	Syn ID = 1
	// Ack acknowledges a Syn or a Terminate; its payload varies by
	// context (server thread id during startup, unused at shutdown).
	Ack ID = 2
	// Continue is sent client to server once the client has consumed
	// the Syn's Ack, moving both sides into steady-state Running.
	Continue ID = 3
	// Response carries the return value of a command that requested
	// one; waited on with WaitForResponse.
	Response ID = 4
	// DebugMessage carries a free-form diagnostic string, used
	// outside of release builds.
	DebugMessage ID = 5

	// SharedHeapAddSeg notifies the peer that a new shared heap
	// segment has been mapped and must be attached on their side too.
	SharedHeapAddSeg ID = 10
	// SharedHeapAlloc notifies the peer of a new allocation.
	SharedHeapAlloc ID = 11
	// SharedHeapDealloc notifies the peer that an allocation has been
	// freed and its chunks may be reused.
	SharedHeapDealloc ID = 12

	// UnlinkResource tells the server side to drop a shadow map entry
	// whose client-side object has been destroyed.
	UnlinkResource ID = 20

	// Terminate is sent client to server to request an orderly
	// shutdown; it keeps the original enum's UINT16_MAX value.
	Terminate ID = 0xFFFF
)

// Flags carries per-command modifiers alongside the command id in a
// Command Header, bit-for-bit as the wire contract: bit 0 says the
// payload is reserved at a prior data-queue offset rather than
// written inline with this command; bit 1 says the payload instead
// resides in the shared heap, addressed by the handle field rather
// than the data queue at all. Bit 2 is this port's own addition,
// since the original signals "response requested" by command id
// (Bridge_Response) rather than a header bit, but every command here
// needs to opt in or out of that independently of which id it carries.
type Flags uint32

const (
	FlagNone Flags = 0

	// FlagDataReserved marks a payload that was written to a
	// previously-reserved data-queue offset instead of appended
	// inline — the producer's "reserve, write elsewhere, then signal"
	// pattern for payloads whose final size isn't known up front.
	FlagDataReserved Flags = 1 << 0

	// FlagDataInHeap marks a payload resident in the shared heap: the
	// command's handle is a heap.AllocId, not a shadow id, and the
	// data queue carries none of the payload bytes themselves. This
	// is the flag spec.md's buffer-unlock scenario sets.
	FlagDataInHeap Flags = 1 << 1

	// FlagExpectsResponse marks a command that requested a
	// Bridge_Response in return, waited on with WaitForResponse.
	FlagExpectsResponse Flags = 1 << 2
)

// String renders the id the way the original's Commands::toString
// switch does: a short symbolic name for known ids, or a numeric
// fallback for anything outside this package's bridge-level range
// (the dispatcher's own opcode space).
func (id ID) String() string {
	switch id {
	case Invalid:
		return "Bridge_Invalid"
	case Syn:
		return "Bridge_Syn"
	case Ack:
		return "Bridge_Ack"
	case Continue:
		return "Bridge_Continue"
	case Response:
		return "Bridge_Response"
	case DebugMessage:
		return "Bridge_DebugMessage"
	case SharedHeapAddSeg:
		return "Bridge_SharedHeap_AddSeg"
	case SharedHeapAlloc:
		return "Bridge_SharedHeap_Alloc"
	case SharedHeapDealloc:
		return "Bridge_SharedHeap_Dealloc"
	case UnlinkResource:
		return "Bridge_UnlinkResource"
	case Terminate:
		return "Bridge_Terminate"
	default:
		return "Api_" + strconv.FormatUint(uint64(id), 10)
	}
}
