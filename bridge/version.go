package bridge

import "github.com/google/uuid"

// Version is compared verbatim between client and server at handshake
// time; a mismatch aborts startup rather than risking a wire-format
// disagreement between two builds.
const Version = "1.0.0"

// SessionGUID scopes every named shared-object this session creates
// ("<prefix>_<session_guid>_<role>_<purpose>"), replacing the source's
// process-wide unique-identifier global with an explicit value the
// caller threads through. A fresh one is minted per bridge session via
// google/uuid's RFC 4122 generator.
type SessionGUID uuid.UUID

// NewSessionGUID mints a fresh session identifier.
func NewSessionGUID() SessionGUID {
	return SessionGUID(uuid.New())
}

// ParseSessionGUID parses a session identifier handed to a server
// process on its command line by the controller that launched it.
func ParseSessionGUID(s string) (SessionGUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SessionGUID{}, err
	}
	return SessionGUID(id), nil
}

func (g SessionGUID) String() string { return uuid.UUID(g).String() }

// objectName builds a shared-object name scoped by this session, role
// and purpose, the Go realization of the source's name-formatting
// helper used for every CreateFileMapping/shm_open call.
func objectName(prefix string, guid SessionGUID, role, purpose string) string {
	return prefix + "_" + guid.String() + "_" + role + "_" + purpose
}
