// Package shadow implements the server side's binding from a client-
// minted resource id to the server's native object for that resource,
// the Go realization of the source's ShadowMap/trackWrapper family in
// shadow_map.h. Unlike the source's template-heavy helpers keyed by
// pointer identity, every binding here is keyed by the plain uint32
// id the client wrapper already carries across the wire in every
// Command Header's handle field.
package shadow

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

var log logrus.FieldLogger = logrus.New().WithField("component", "shadow")

// SetLogger overrides the package-level logger.
func SetLogger(l logrus.FieldLogger) { log = l }

// historySize bounds the diagnostic ring of recently erased ids kept
// for fatal-protocol dumps — enough to reconstruct the handful of
// calls immediately preceding a desync without growing unbounded over
// a long-running session.
const historySize = 256

type entry struct {
	obj  any
	refs int
	kind string
}

// Map is a process-local, mutex-guarded binding from a client-minted
// uint32 id to its live native object on the server. Identifiers are
// unique per client process lifetime and never reused while a binding
// is live; Track/GetOrTrack/Resolve/Erase mirror trackWrapper/
// getOrTrackWrapper/getWrapperOnly/the implicit erase-on-destroy the
// source performs via gShadowMap.
type Map struct {
	mu      sync.Mutex
	entries map[uint32]*entry

	// recent is a bounded history of ids erased from the map, written
	// to the log (and kept) on a fatal UnlinkResource-ordering violation so a
	// crash report can show what was live immediately beforehand.
	recent *lru.Cache[uint32, string]
}

// New returns an empty shadow map.
func New() *Map {
	cache, err := lru.New[uint32, string](historySize)
	if err != nil {
		// historySize is a positive compile-time constant; lru.New
		// only fails for size <= 0.
		panic(err)
	}
	return &Map{entries: make(map[uint32]*entry), recent: cache}
}

// Track binds id to obj with an initial reference count of one,
// failing if id is already bound — the Go equivalent of trackWrapper
// asserting a fresh pointer rather than silently overwriting.
func (m *Map) Track(id uint32, kind string, obj any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[id]; exists {
		return ErrAlreadyTracked
	}
	m.entries[id] = &entry{obj: obj, refs: 1, kind: kind}
	return nil
}

// GetOrTrack returns the object already bound to id, incrementing its
// refcount, or binds a freshly constructed one via newObj if id is not
// yet tracked — the Go shape of getOrTrackWrapper, without the
// pointer-identity dispatch the source's template needs since this
// map is already keyed by the wire id.
func (m *Map) GetOrTrack(id uint32, kind string, newObj func() any) (obj any, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.refs++
		return e.obj, false
	}
	obj = newObj()
	m.entries[id] = &entry{obj: obj, refs: 1, kind: kind}
	return obj, true
}

// Resolve returns the object bound to id without affecting its
// refcount, the Go shape of getWrapperOnly with the AddRef split out
// into AddRef so callers can choose.
func (m *Map) Resolve(id uint32) (obj any, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// AddRef increments id's reference count, returning ErrNotTracked if
// id has no binding.
func (m *Map) AddRef(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ErrNotTracked
	}
	e.refs++
	return nil
}

// Release decrements id's reference count and erases the binding once
// it reaches zero, returning the object on a final release so the
// caller can tear it down. "release until zero, then stop": releasing
// an id that is already at zero refs, or not tracked at all, is a
// no-op rather than an error, matching the map's tolerance of
// redundant Unlock/destroy calls from the client.
func (m *Map) Release(id uint32) (obj any, erased bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.refs <= 0 {
		return nil, false
	}
	e.refs--
	if e.refs > 0 {
		return e.obj, false
	}
	delete(m.entries, id)
	m.recent.Add(id, e.kind)
	return e.obj, true
}

// Erase unconditionally removes id's binding regardless of refcount,
// the path taken on UnlinkResource: the client has already destroyed
// its wrapper, so the server drops its binding no matter how many
// in-flight references the protocol thought were outstanding.
func (m *Map) Erase(id uint32) (obj any, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	delete(m.entries, id)
	m.recent.Add(id, e.kind)
	return e.obj, true
}

// Len reports the number of live bindings.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// DumpRecentHistory logs the bounded ring of most-recently erased ids,
// called when a protocol violation (e.g. a handle the client never
// tracked, or a double-unlink) suggests the two sides have desynced
// and a crash report needs to show what was live just beforehand.
func (m *Map) DumpRecentHistory() {
	m.mu.Lock()
	keys := m.recent.Keys()
	m.mu.Unlock()
	for _, id := range keys {
		kind, _ := m.recent.Peek(id)
		log.WithField("id", id).WithField("kind", kind).Warn("recently erased shadow map entry")
	}
}
