// Package physics implements the integrators that advance continuous
// state for simulated physical processes (spec §4.3). Each integrator
// is grounded value-for-value on its sibling in
// original_source/components/physics — turbine_physics.py,
// reactor_physics.py, hvac_physics.py, grid_physics.py, power_flow.py —
// re-expressed as Go structs with explicit parameter/state types in
// place of Python dataclasses.
package physics

import "github.com/icsim/simcore/internal/fabric"

// Integrator is the common contract every physics engine satisfies
// (spec §4.3's "common contract"): read control inputs, advance state
// by dt, publish telemetry. The orchestrator calls these three in order
// for every integrator, once per tick, in device-name order.
type Integrator interface {
	DeviceName() string
	ReadControls(f *fabric.Fabric)
	Update(dt float64)
	WriteTelemetry(f *fabric.Fabric)
}
