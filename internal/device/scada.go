package device

import (
	"sort"

	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

// TagConfig binds a logical tag name to a peer device's memory-map
// address, plus the alarm limits evaluated against it on every scan
// (spec §4.4: "evaluates configured alarm limits and hysteresis").
type TagConfig struct {
	Tag        string
	PeerDevice string
	Key        model.Key

	LowLimit, HighLimit float64
	Hysteresis          float64
}

// TagValue is a SCADA tag's last-polled value and derived alarm state.
type TagValue struct {
	Value     float64
	Good      bool // false if the last poll of PeerDevice/Key failed
	LowAlarm  bool
	HighAlarm bool
}

// SCADADevice owns no physics (spec §4.4): its scan cycle refreshes a
// tag database by polling peer devices' memory maps through the State
// Fabric, and evaluates each tag's alarm limits with hysteresis so an
// alarm doesn't chatter right at the limit.
type SCADADevice struct {
	name string
	tags map[string]TagConfig
	vals map[string]TagValue
}

// NewSCADADevice creates a SCADA device with the given tag configuration.
func NewSCADADevice(name string, tags []TagConfig) *SCADADevice {
	s := &SCADADevice{
		name: name,
		tags: make(map[string]TagConfig, len(tags)),
		vals: make(map[string]TagValue, len(tags)),
	}
	for _, t := range tags {
		s.tags[t.Tag] = t
	}
	return s
}

func (s *SCADADevice) DeviceName() string { return s.name }

// Scan refreshes every configured tag from its peer device and
// re-evaluates alarms. A single peer read failure does not abort the
// rest of the scan; the tag is simply marked !Good and its previous
// alarm state is held.
func (s *SCADADevice) Scan(f *fabric.Fabric) ([]model.Event, error) {
	for name, cfg := range s.tags {
		raw, ok, err := f.Read(cfg.PeerDevice, cfg.Key)
		if err != nil || !ok {
			prev := s.vals[name]
			prev.Good = false
			s.vals[name] = prev
			continue
		}

		v := toFloat(raw)
		prev := s.vals[name]
		next := TagValue{Value: v, Good: true}

		next.LowAlarm = evalLowAlarm(prev.LowAlarm, v, cfg.LowLimit, cfg.Hysteresis)
		next.HighAlarm = evalHighAlarm(prev.HighAlarm, v, cfg.HighLimit, cfg.Hysteresis)

		s.vals[name] = next
	}
	return nil, nil
}

// evalLowAlarm implements limit-with-hysteresis: once tripped, the alarm
// only clears after the value rises hysteresis above the limit, so a
// value oscillating right at the limit doesn't flap the alarm.
func evalLowAlarm(wasActive bool, v, limit, hysteresis float64) bool {
	if wasActive {
		return v < limit+hysteresis
	}
	return v < limit
}

func evalHighAlarm(wasActive bool, v, limit, hysteresis float64) bool {
	if wasActive {
		return v > limit-hysteresis
	}
	return v > limit
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case uint16:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case float64:
		return n
	default:
		return 0
	}
}

// Tag returns a tag's last-polled value and alarm state. HMI devices
// read a SCADA device's tag database through this method, in-process,
// rather than through the State Fabric (spec §4.4: "HMI polls a SCADA
// device's tag database").
func (s *SCADADevice) Tag(name string) (TagValue, bool) {
	v, ok := s.vals[name]
	return v, ok
}

// TagNames returns every configured tag name, sorted.
func (s *SCADADevice) TagNames() []string {
	names := make([]string, 0, len(s.tags))
	for n := range s.tags {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
