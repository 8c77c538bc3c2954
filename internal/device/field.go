package device

import (
	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/internal/physics"
	"github.com/icsim/simcore/pkg/model"
)

// FieldDevice is the scan machine for a PLC or RTU (spec §4.4): it owns
// a physics integrator and its scan cycle forwards controls and
// telemetry through the State Fabric. The integrator's own Update(dt)
// is advanced separately by the orchestrator's physics step, on every
// tick rather than only on scan boundaries — the scan cycle here is the
// protocol-facing cadence, not the physical one.
type FieldDevice struct {
	name       string
	integrator physics.Integrator
}

// NewFieldDevice wraps a physics integrator as a PLC/RTU scan machine.
func NewFieldDevice(integrator physics.Integrator) *FieldDevice {
	return &FieldDevice{name: integrator.DeviceName(), integrator: integrator}
}

func (d *FieldDevice) DeviceName() string { return d.name }

// Scan re-reads the latest operator/peer-written controls and republishes
// the integrator's current telemetry, per spec §4.4 step 2 and step 4.
func (d *FieldDevice) Scan(f *fabric.Fabric) ([]model.Event, error) {
	d.integrator.ReadControls(f)
	d.integrator.WriteTelemetry(f)
	return nil, nil
}

// Integrator exposes the wrapped physics integrator, e.g. so the
// orchestrator's physics step can advance it without a type switch.
func (d *FieldDevice) Integrator() physics.Integrator { return d.integrator }
