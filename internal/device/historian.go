package device

import (
	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
	"github.com/icsim/simcore/pkg/utils"
)

// Sample is one Historian recording, adapted from the teacher's
// MetricPoint{Timestamp, Name, Value, Labels} shape to the kernel's
// sim-time vocabulary.
type Sample struct {
	SimTime float64
	Tag     string
	Value   float64
}

// HistorianTag names a peer (device, key) pair the Historian snapshots
// on every scan.
type HistorianTag struct {
	Tag        string
	PeerDevice string
	Key        model.Key
}

// ring is a fixed-capacity circular buffer of samples, oldest overwritten
// first. It replaces the teacher's unbounded append-only time-series
// slice (collector.go) with the bounded buffer spec §4.4 calls for.
type ring struct {
	buf   []Sample
	head  int // index of the oldest sample
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Sample, capacity)}
}

func (r *ring) push(s Sample) {
	size := len(r.buf)
	if r.count < size {
		r.buf[(r.head+r.count)%size] = s
		r.count++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % size
}

func (r *ring) snapshot() []Sample {
	out := make([]Sample, r.count)
	size := len(r.buf)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%size]
	}
	return out
}

// DefaultHistorianCapacity is the per-tag ring buffer size (spec §4.4
// "bounded ring buffer", capacity fixed by SPEC_FULL §12.6).
const DefaultHistorianCapacity = 1000

// HistorianDevice periodically snapshots selected peer tags into bounded
// per-tag ring buffers with monotonic sim-time timestamps (spec §4.4).
type HistorianDevice struct {
	name     string
	tags     []HistorianTag
	buffers  map[string]*ring
	capacity int
}

// NewHistorianDevice creates a Historian recording the given tags, each
// into its own capacity-bounded ring buffer.
func NewHistorianDevice(name string, tags []HistorianTag, capacity int) *HistorianDevice {
	if capacity <= 0 {
		capacity = DefaultHistorianCapacity
	}
	h := &HistorianDevice{
		name:     name,
		tags:     tags,
		buffers:  make(map[string]*ring, len(tags)),
		capacity: capacity,
	}
	for _, t := range tags {
		h.buffers[t.Tag] = newRing(capacity)
	}
	return h
}

func (h *HistorianDevice) DeviceName() string { return h.name }

// Scan reads each tracked tag and appends a timestamped sample. A failed
// peer read is silently skipped for that tag this tick rather than
// aborting the whole scan; monotonicity of recorded timestamps is
// unaffected since sim time never moves backward.
func (h *HistorianDevice) Scan(f *fabric.Fabric) ([]model.Event, error) {
	now := f.Now()
	for _, t := range h.tags {
		raw, ok, err := f.Read(t.PeerDevice, t.Key)
		if err != nil || !ok {
			continue
		}
		h.buffers[t.Tag].push(Sample{SimTime: now, Tag: t.Tag, Value: toFloat(raw)})
	}
	return nil, nil
}

// History returns a copy of a tag's recorded samples, oldest first.
func (h *HistorianDevice) History(tag string) []Sample {
	r, ok := h.buffers[tag]
	if !ok {
		return nil
	}
	return r.snapshot()
}

// TagStats summarizes a tag's currently buffered samples, the
// aggregation an HMI trend display or an operator query asks a
// Historian for (spec §4.4's "supports historical queries").
type TagStats struct {
	Count  int
	Mean   float64
	StdDev float64
	P50    float64
	P95    float64
	P99    float64
}

// Stats computes summary statistics over a tag's current buffer. The
// zero value is returned for an unknown tag or an empty buffer.
func (h *HistorianDevice) Stats(tag string) TagStats {
	r, ok := h.buffers[tag]
	if !ok {
		return TagStats{}
	}
	samples := r.snapshot()
	if len(samples) == 0 {
		return TagStats{}
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return TagStats{
		Count:  len(values),
		Mean:   utils.Mean(values),
		StdDev: utils.StdDev(values),
		P50:    utils.P50(values),
		P95:    utils.P95(values),
		P99:    utils.P99(values),
	}
}
