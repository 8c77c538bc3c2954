package protocol

import (
	"sync"

	"github.com/icsim/simcore/pkg/model"
)

// Mirror is a listener's private copy of its device's memory map (spec
// §4.5): client requests are served against the mirror, never against
// the State Fabric directly, so a busy session never blocks the tick
// loop and vice versa. The orchestrator drains pending writes and
// refreshes telemetry once per tick, between scan steps — never mid-scan
// — via MirrorPull/MirrorPush.
type Mirror struct {
	mu      sync.Mutex
	snap    *model.MemoryMap // readable snapshot: telemetry + last-known controls
	pending *model.MemoryMap // control writes received from clients, not yet applied
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{snap: model.NewMemoryMap(), pending: model.NewMemoryMap()}
}

// Push merges a telemetry snapshot into the mirror (orchestrator ->
// listener direction).
func (m *Mirror) Push(partial *model.MemoryMap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Merge(partial)
}

// Pull returns and clears the accumulated client writes (listener ->
// orchestrator direction). The orchestrator applies the result to the
// device's State Fabric entry via WriteBulk.
func (m *Mirror) Pull() *model.MemoryMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = model.NewMemoryMap()
	return out
}

// ReadBool reads a coil/discrete-input from the mirror's current
// snapshot, reflecting client writes already applied locally (so a
// write followed by a read in the same or a later session sees it
// immediately, without waiting for the next tick's sync).
func (m *Mirror) ReadBool(k model.Key) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.GetBool(k)
}

// ReadReg reads a holding/input register from the mirror.
func (m *Mirror) ReadReg(k model.Key) (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.GetReg(k)
}

// WriteBool records a client coil write: applied to the local snapshot
// immediately (so subsequent reads in the same session see it) and
// queued in pending for the orchestrator to push into the Fabric.
func (m *Mirror) WriteBool(k model.Key, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.SetBool(k, v)
	m.pending.SetBool(k, v)
}

// WriteReg records a client holding-register write.
func (m *Mirror) WriteReg(k model.Key, v uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.SetReg(k, v)
	m.pending.SetReg(k, v)
}
