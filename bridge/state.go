package bridge

import "sync/atomic"

// ProcessState is a step in the bridge state machine, published by
// both the client and server process so each side can observe the
// other's progress without a shared lock.
type ProcessState uint32

const (
	Uninit ProcessState = iota
	Init
	Handshaking
	Running
	DoneProcessing
	Exited
)

func (s ProcessState) String() string {
	switch s {
	case Uninit:
		return "Uninit"
	case Init:
		return "Init"
	case Handshaking:
		return "Handshaking"
	case Running:
		return "Running"
	case DoneProcessing:
		return "DoneProcessing"
	case Exited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// stateAccessors publishes the client and server ProcessState into
// two atomics living in shared memory. The original implementation
// keeps this behind a process-wide BridgeState singleton; here it is
// just two fields owned by whichever Session created them, which both
// processes read and write directly — no singleton, no global lock,
// per the redesign away from the source's static accessor pattern.
type stateAccessors struct {
	client atomic.Uint32
	server atomic.Uint32
}

func (s *stateAccessors) setClient(v ProcessState) { s.client.Store(uint32(v)) }
func (s *stateAccessors) getClient() ProcessState  { return ProcessState(s.client.Load()) }
func (s *stateAccessors) setServer(v ProcessState) { s.server.Store(uint32(v)) }
func (s *stateAccessors) getServer() ProcessState  { return ProcessState(s.server.Load()) }
