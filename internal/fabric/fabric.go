// Package fabric implements the State Fabric (spec §4.2): the device
// registry and per-device memory maps, with atomic per-device access.
// It is grounded on the teacher's internal/resource.Manager locking
// pattern — a top-level registry lock guards registration and lookup, while
// each device's own mutation is serialized on a lock scoped to that
// device so that writers of different devices never block each other.
package fabric

import (
	"fmt"
	"sync"

	"github.com/icsim/simcore/internal/clock"
	"github.com/icsim/simcore/pkg/kerrors"
	"github.com/icsim/simcore/pkg/model"
)

type entry struct {
	mu                  sync.Mutex
	record              *model.DeviceRecord
	consecutiveFailures int
}

// Fabric is the process-wide device registry. One instance is created
// by the orchestrator at boot and passed explicitly to every component
// that needs it — there is no package-level singleton.
type Fabric struct {
	mu      sync.RWMutex
	devices map[string]*entry
	clock   *clock.Clock
}

// New creates an empty State Fabric bound to the given clock handle.
func New(c *clock.Clock) *Fabric {
	return &Fabric{
		devices: make(map[string]*entry),
		clock:   c,
	}
}

// Register adds a new device. It fails with ErrDuplicateDevice if the
// name is already registered.
func (f *Fabric) Register(name string, kind model.DeviceKind, deviceID uint16, protocols []string, metadata map[string]any) (*model.DeviceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.devices[name]; exists {
		return nil, fmt.Errorf("register %q: %w", name, kerrors.ErrDuplicateDevice)
	}

	rec := model.NewDeviceRecord(name, kind, deviceID, protocols)
	for k, v := range metadata {
		rec.Metadata[k] = v
	}
	rec.Online = true
	f.devices[name] = &entry{record: rec}
	return rec, nil
}

// lookup returns the device's entry without acquiring its per-device
// lock; callers must still lock entry.mu before touching entry.record.
func (f *Fabric) lookup(name string) (*entry, error) {
	f.mu.RLock()
	e, ok := f.devices[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("device %q: %w", name, kerrors.ErrUnknownDevice)
	}
	return e, nil
}

// SetOnline flips a device's online flag.
func (f *Fabric) SetOnline(name string, online bool) error {
	e, err := f.lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.record.Online = online
	e.mu.Unlock()
	return nil
}

// IsOnline reports whether a registered device is currently online.
func (f *Fabric) IsOnline(name string) (bool, error) {
	e, err := f.lookup(name)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Online, nil
}

// Read returns a single value at key, typed as bool or uint16 depending
// on the address space. The second return is false if the index is
// unmapped (Option<Value> in the spec's vocabulary).
func (f *Fabric) Read(name string, key model.Key) (any, bool, error) {
	e, err := f.lookup(name)
	if err != nil {
		return nil, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if key.Space.IsBool() {
		v, ok := e.record.Memory.GetBool(key)
		return v, ok, nil
	}
	v, ok := e.record.Memory.GetReg(key)
	return v, ok, nil
}

// Write sets a single value, validating that its Go type matches the
// address space (bool for coils/discrete inputs, uint16 for registers).
func (f *Fabric) Write(name string, key model.Key, value any) error {
	e, err := f.lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if key.Space.IsBool() {
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("write %s on %q: %w", key, name, kerrors.ErrTypeMismatch)
		}
		e.record.Memory.SetBool(key, b)
	} else {
		reg, ok := toUint16(value)
		if !ok {
			return fmt.Errorf("write %s on %q: %w", key, name, kerrors.ErrTypeMismatch)
		}
		e.record.Memory.SetReg(key, reg)
	}
	e.record.LastUpdate = f.clock.Now()
	return nil
}

func toUint16(v any) (uint16, bool) {
	switch n := v.(type) {
	case uint16:
		return n, true
	case int:
		if n < 0 || n > 0xFFFF {
			return 0, false
		}
		return uint16(n), true
	default:
		return 0, false
	}
}

// ReadBulk returns a deep-copy snapshot of a device's entire memory map.
func (f *Fabric) ReadBulk(name string) (*model.MemoryMap, error) {
	e, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Memory.Snapshot(), nil
}

// WriteBulk atomically merges partial onto a device's memory map. Atomic
// here means "not interleaved with another write/bulk-write on the same
// device" — it is not a system-wide transaction across devices.
func (f *Fabric) WriteBulk(name string, partial *model.MemoryMap) error {
	e, err := f.lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.Memory.Merge(partial)
	e.record.LastUpdate = f.clock.Now()
	return nil
}

// RecordScanFailure increments a device's consecutive-scan-failure
// counter and reports whether it has now crossed threshold (at which
// point the caller should mark the device offline and emit
// DeviceFaulted).
func (f *Fabric) RecordScanFailure(name string, threshold int) (bool, error) {
	e, err := f.lookup(name)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFailures++
	faulted := e.consecutiveFailures >= threshold
	if faulted {
		e.record.Online = false
	}
	return faulted, nil
}

// RecordScanSuccess resets a device's consecutive-scan-failure counter.
func (f *Fabric) RecordScanSuccess(name string) error {
	e, err := f.lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.consecutiveFailures = 0
	e.mu.Unlock()
	return nil
}

// All returns every registered device, sorted by name.
func (f *Fabric) All() []*model.DeviceRecord {
	return f.filter(func(*model.DeviceRecord) bool { return true })
}

// ListByKind returns every registered device of the given kind, sorted
// by name for deterministic iteration order.
func (f *Fabric) ListByKind(kind model.DeviceKind) []*model.DeviceRecord {
	return f.filter(func(r *model.DeviceRecord) bool { return r.Kind == kind })
}

// ListByProtocol returns every registered device declaring the given
// protocol tag, sorted by name.
func (f *Fabric) ListByProtocol(tag string) []*model.DeviceRecord {
	return f.filter(func(r *model.DeviceRecord) bool { return r.HasProtocol(tag) })
}

// Now returns the current simulation time, as tracked by the clock this
// Fabric was created with. Components that need a timestamp to stamp
// samples or events (the Historian, kernel event emission) go through
// here rather than holding their own *clock.Clock reference.
func (f *Fabric) Now() float64 {
	return f.clock.Now()
}

// Names returns every registered device name, sorted. The orchestrator
// uses this to drive physics/scan execution in a stable, deterministic
// order (spec §5 "sorted by device name").
func (f *Fabric) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.devices))
	for n := range f.devices {
		names = append(names, n)
	}
	sortStrings(names)
	return names
}

func (f *Fabric) filter(pred func(*model.DeviceRecord) bool) []*model.DeviceRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*model.DeviceRecord
	for _, name := range sortedKeys(f.devices) {
		e := f.devices[name]
		e.mu.Lock()
		if pred(e.record) {
			out = append(out, e.record)
		}
		e.mu.Unlock()
	}
	return out
}

// Summary is the status snapshot returned by Summary().
type Summary struct {
	DevicesTotal  int
	DevicesOnline int
	ByKind        map[model.DeviceKind]int
	ByProtocol    map[string]int
	SimTime       float64
	Cycles        uint64
}

// Summary returns an aggregate status snapshot across all devices.
func (f *Fabric) Summary() Summary {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Summary{
		ByKind:     make(map[model.DeviceKind]int),
		ByProtocol: make(map[string]int),
		SimTime:    f.clock.Now(),
		Cycles:     f.clock.Cycles(),
	}
	for _, e := range f.devices {
		e.mu.Lock()
		s.DevicesTotal++
		if e.record.Online {
			s.DevicesOnline++
		}
		s.ByKind[e.record.Kind]++
		for p := range e.record.Protocols {
			s.ByProtocol[p]++
		}
		e.mu.Unlock()
	}
	return s
}
