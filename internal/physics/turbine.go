package physics

import (
	"math"

	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
	"github.com/icsim/simcore/pkg/utils"
)

// TurbineParams mirrors original_source/components/physics/
// turbine_physics.py's TurbineParameters dataclass defaults.
type TurbineParams struct {
	RatedSpeedRPM         float64
	RatedPowerMW          float64
	MaxSafeSpeedRPM       float64
	AccelRPMPerS          float64
	DecelRPMPerS          float64
	VibrationNormalMils   float64
	VibrationCriticalMils float64
	BearingCriticalC      float64
}

// DefaultTurbineParams returns the spec's §4.3.1 defaults.
func DefaultTurbineParams() TurbineParams {
	return TurbineParams{
		RatedSpeedRPM:         3600,
		RatedPowerMW:          100,
		MaxSafeSpeedRPM:       3960, // 110% of rated
		AccelRPMPerS:          100,
		DecelRPMPerS:          50,
		VibrationNormalMils:   2.0,
		VibrationCriticalMils: 10.0,
		BearingCriticalC:      65.0,
	}
}

// TurbineState is the turbine's continuous physical state, owned
// exclusively by this integrator and exposed only through its device's
// memory map (spec §3 PhysicsState).
type TurbineState struct {
	ShaftSpeedRPM          float64
	SteamPressurePSI       float64
	SteamTemperatureC      float64
	BearingTemperatureC    float64
	VibrationMils          float64
	PowerOutputMW          float64
	OverspeedAccumulatedS  float64
	DamagePct              float64
	Running                bool
}

const ambientTempC = 21.0

// TurbineIntegrator advances a single steam turbine's continuous state.
// Register layout (resolved to canonical keys at Read/WriteTelemetry):
// holding_registers[0] is the speed setpoint (control, writable);
// coils[10]/[11] are governor_enabled/emergency_trip (control); all
// telemetry — shaft speed, temperatures, pressure, vibration, power,
// overspeed/damage accumulators and status flags — is written to
// input_registers/discrete_inputs, never to the control spaces, per the
// State Fabric's "telemetry writable only by the owning device"
// invariant.
type TurbineIntegrator struct {
	deviceName string
	params     TurbineParams
	state      TurbineState

	setpointRPM     float64
	governorEnabled bool
	emergencyTrip   bool
}

// NewTurbineIntegrator creates a turbine integrator bound to deviceName.
func NewTurbineIntegrator(deviceName string, params TurbineParams) *TurbineIntegrator {
	return &TurbineIntegrator{deviceName: deviceName, params: params}
}

func (t *TurbineIntegrator) DeviceName() string { return t.deviceName }

func (t *TurbineIntegrator) ReadControls(f *fabric.Fabric) {
	setpointKey, _ := model.ParseKey("holding_registers[0]")
	governorKey, _ := model.ParseKey("coils[10]")
	tripKey, _ := model.ParseKey("coils[11]")

	if v, ok, _ := f.Read(t.deviceName, setpointKey); ok {
		t.setpointRPM = float64(v.(uint16))
	}
	if v, ok, _ := f.Read(t.deviceName, governorKey); ok {
		t.governorEnabled = v.(bool)
	} else {
		t.governorEnabled = false
	}
	if v, ok, _ := f.Read(t.deviceName, tripKey); ok {
		t.emergencyTrip = v.(bool)
	} else {
		t.emergencyTrip = false
	}
}

func (t *TurbineIntegrator) Update(dt float64) {
	if dt <= 0 {
		return
	}

	switch {
	case t.emergencyTrip:
		t.emergencyShutdown(dt)
	case t.governorEnabled:
		t.updateWithGovernor(dt)
	default:
		t.naturalDeceleration(dt)
	}

	t.updateTemperatures(dt)
	t.updateVibration()
	t.updatePowerOutput()
	t.updateDamage(dt)

	t.state.Running = t.state.ShaftSpeedRPM > 100

	if t.state.DamagePct > 50 {
		// Catastrophic failure: the turbine can no longer run, and
		// decays at double the normal deceleration rate regardless of
		// governor/setpoint commands.
		t.state.Running = false
		t.state.ShaftSpeedRPM = math.Max(0, t.state.ShaftSpeedRPM-2*t.params.DecelRPMPerS*dt)
	}
}

func (t *TurbineIntegrator) updateWithGovernor(dt float64) {
	target := math.Max(0, t.setpointRPM)
	err := target - t.state.ShaftSpeedRPM
	if math.Abs(err) < 1.0 {
		t.state.ShaftSpeedRPM = target
		return
	}
	var rate float64
	if err > 0 {
		rate = math.Min(t.params.AccelRPMPerS, err*10.0)
		t.state.ShaftSpeedRPM += rate * dt
	} else {
		rate = math.Min(t.params.DecelRPMPerS, -err*10.0)
		t.state.ShaftSpeedRPM -= rate * dt
	}
	t.state.ShaftSpeedRPM = math.Max(0, t.state.ShaftSpeedRPM)
}

func (t *TurbineIntegrator) naturalDeceleration(dt float64) {
	t.state.ShaftSpeedRPM = math.Max(0, t.state.ShaftSpeedRPM-t.params.DecelRPMPerS*dt)
}

func (t *TurbineIntegrator) emergencyShutdown(dt float64) {
	t.state.ShaftSpeedRPM = math.Max(0, t.state.ShaftSpeedRPM-2*t.params.DecelRPMPerS*dt)

	bearingTC := 0.1
	steamTC := bearingTC * 0.5
	t.state.BearingTemperatureC += (ambientTempC - t.state.BearingTemperatureC) * bearingTC * dt
	t.state.SteamTemperatureC += (ambientTempC - t.state.SteamTemperatureC) * steamTC * dt
	t.state.SteamPressurePSI = math.Max(0, t.state.SteamPressurePSI-t.state.SteamPressurePSI*steamTC*dt)
}

func (t *TurbineIntegrator) updateTemperatures(dt float64) {
	speedFactor := t.state.ShaftSpeedRPM / t.params.RatedSpeedRPM
	vibrationFactor := t.state.VibrationMils / t.params.VibrationNormalMils

	targetBearing := ambientTempC + speedFactor*58.0 + vibrationFactor*15.0
	const bearingTC = 0.15
	t.state.BearingTemperatureC += (targetBearing - t.state.BearingTemperatureC) * bearingTC * dt

	var targetSteamTemp, targetSteamPressure float64
	if t.state.ShaftSpeedRPM > 100 {
		targetSteamTemp = 315.0 + speedFactor*167.0
		targetSteamPressure = 1000.0 + speedFactor*800.0
	}
	const steamTC = 0.05
	t.state.SteamTemperatureC += (targetSteamTemp - t.state.SteamTemperatureC) * steamTC * dt
	t.state.SteamPressurePSI += (targetSteamPressure - t.state.SteamPressurePSI) * bearingTC * dt
}

func (t *TurbineIntegrator) updateVibration() {
	deviationFactor := math.Abs(t.state.ShaftSpeedRPM-t.params.RatedSpeedRPM) / t.params.RatedSpeedRPM
	v := t.params.VibrationNormalMils * (1.0 + deviationFactor*3.0)
	v *= 1.0 + t.state.DamagePct/100.0
	t.state.VibrationMils = v
}

func (t *TurbineIntegrator) updatePowerOutput() {
	ratio := t.state.ShaftSpeedRPM / t.params.RatedSpeedRPM
	switch {
	case ratio < 0.2:
		t.state.PowerOutputMW = 0
	case ratio <= 1.0:
		t.state.PowerOutputMW = t.params.RatedPowerMW * ratio
	default:
		t.state.PowerOutputMW = t.params.RatedPowerMW * math.Min(ratio, 1.05)
	}
}

// updateDamage implements spec §4.3.1's "1%/s at 120% rated, scaling
// linearly with overshoot" once shaft speed crosses max_safe: damage
// accrues at (ratio - 1.0) * 5.0 percent per second, which evaluates to
// exactly 1%/s at ratio = 1.2 (120% of rated).
func (t *TurbineIntegrator) updateDamage(dt float64) {
	if t.state.ShaftSpeedRPM <= t.params.MaxSafeSpeedRPM {
		return
	}
	t.state.OverspeedAccumulatedS += dt
	ratio := t.state.ShaftSpeedRPM / t.params.RatedSpeedRPM
	rate := (ratio - 1.0) * 5.0
	if rate < 0 {
		return
	}
	t.state.DamagePct = math.Min(100, t.state.DamagePct+rate*dt)
}

func (t *TurbineIntegrator) WriteTelemetry(f *fabric.Fabric) {
	partial := model.NewMemoryMap()

	k := func(s string) model.Key { key, _ := model.ParseKey(s); return key }

	partial.InputRegisters[k("input_registers[0]").Index] = toU16(t.state.ShaftSpeedRPM)
	partial.InputRegisters[k("input_registers[1]").Index] = toU16(t.state.SteamTemperatureC)
	partial.InputRegisters[k("input_registers[2]").Index] = toU16(t.state.SteamPressurePSI)
	partial.InputRegisters[k("input_registers[3]").Index] = toU16(t.state.BearingTemperatureC)
	partial.InputRegisters[k("input_registers[4]").Index] = toU16(t.state.VibrationMils * 10)
	partial.InputRegisters[k("input_registers[5]").Index] = toU16(t.state.PowerOutputMW)
	partial.InputRegisters[k("input_registers[6]").Index] = toU16(t.state.OverspeedAccumulatedS)
	partial.InputRegisters[k("input_registers[7]").Index] = toU16(t.state.DamagePct)

	partial.DiscreteInputs[0] = t.state.Running
	partial.DiscreteInputs[1] = t.state.ShaftSpeedRPM > t.params.MaxSafeSpeedRPM
	partial.DiscreteInputs[2] = t.state.VibrationMils > t.params.VibrationCriticalMils
	partial.DiscreteInputs[3] = t.state.BearingTemperatureC > t.params.BearingCriticalC
	partial.DiscreteInputs[4] = t.state.DamagePct > 50

	f.WriteBulk(t.deviceName, partial)
}

// State returns a copy of the integrator's current physical state, used
// by scan machines (Safety PLC interlocks) and tests.
func (t *TurbineIntegrator) State() TurbineState { return t.state }

func clamp(v, lo, hi float64) float64 {
	return utils.ClampFloat64(v, lo, hi)
}

func toU16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
