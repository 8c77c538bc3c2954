package device

import (
	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

// TripTarget names a single coil a Safety PLC is authorized to assert,
// either on its own memory map or an explicitly authorized peer's (spec
// §4.4: "may only write coils it owns or explicitly authorized
// trip-signal coils on a peer device; never writes a setpoint").
type TripTarget struct {
	Device string
	Key    model.Key
}

// SafetyPLCDevice runs the same scan cycle as a PLC/RTU but with its
// write authority restricted to trip-signal coils. It watches one
// condition on a peer device (typically an overspeed or containment
// alarm bit) and latches an emergency trip through a breaker rather than
// self-clearing the instant the alarm bit drops: the trip is released on
// a later scan only once the cooldown has run with the condition clear
// and resetOK accepts the reset (SPEC_FULL §12.5).
type SafetyPLCDevice struct {
	name        string
	watchDevice string
	watchKey    model.Key

	targets   []TripTarget
	eventType model.EventType
	resetOK   func() bool

	breaker *tripBreaker
}

// NewSafetyPLCDevice creates a Safety PLC watching watchKey on
// watchDevice and asserting every target coil when it trips. resetOK is
// consulted only after the cooldown window elapses once the watched
// condition has cleared; it should validate the underlying plant state
// is genuinely safe (e.g. containment integrity above threshold), not
// merely that the alarm bit reads false. A nil resetOK accepts every
// reset.
func NewSafetyPLCDevice(name, watchDevice string, watchKey model.Key, targets []TripTarget, eventType model.EventType, cooldownS float64, resetOK func() bool) *SafetyPLCDevice {
	if resetOK == nil {
		resetOK = func() bool { return true }
	}
	return &SafetyPLCDevice{
		name:        name,
		watchDevice: watchDevice,
		watchKey:    watchKey,
		targets:     targets,
		eventType:   eventType,
		resetOK:     resetOK,
		breaker:     newTripBreaker(cooldownS),
	}
}

func (s *SafetyPLCDevice) DeviceName() string { return s.name }

// Scan reads the watched condition, advances the trip breaker, and on
// the tick the breaker transitions into Tripped, asserts every
// authorized target coil and emits the configured trip event. On the
// tick it returns to Normal, it clears those same coils.
func (s *SafetyPLCDevice) Scan(f *fabric.Fabric) ([]model.Event, error) {
	raw, ok, err := f.Read(s.watchDevice, s.watchKey)
	if err != nil {
		return nil, err
	}
	unsafe := ok && asBool(raw)

	prevState := s.breaker.State()
	justTripped := s.breaker.Evaluate(f.Now(), unsafe, s.resetOK)

	var events []model.Event
	switch {
	case justTripped:
		for _, t := range s.targets {
			if err := f.Write(t.Device, t.Key, true); err != nil {
				return events, err
			}
		}
		events = append(events, model.NewEvent(s.eventType, f.Now(), s.name, map[string]any{
			"watch_device": s.watchDevice,
		}))
	case prevState != Normal && s.breaker.State() == Normal:
		for _, t := range s.targets {
			if err := f.Write(t.Device, t.Key, false); err != nil {
				return events, err
			}
		}
	}
	return events, nil
}

// State returns the Safety PLC's current trip-breaker state.
func (s *SafetyPLCDevice) State() TripState { return s.breaker.State() }

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return toFloat(v) != 0
}
