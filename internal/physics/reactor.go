package physics

import (
	"math"

	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

// ReactorParams mirrors original_source/components/physics/
// reactor_physics.py's ReactorParameters dataclass defaults.
type ReactorParams struct {
	RatedPowerMW         float64
	RatedTemperatureC    float64
	MaxSafeTemperatureC  float64
	CriticalTemperatureC float64
	MaxSafePressureBar   float64
	ThermalMass          float64 // MJ/°C
	CoolantCapacity      float64 // MW per °C difference
	ReactionTimeConstant float64 // seconds
	ThaumicDecayRate     float64 // per second when unstable
	ThaumicRecoveryRate  float64 // per second when stable
}

// DefaultReactorParams returns the spec's §4.3.2 defaults.
func DefaultReactorParams() ReactorParams {
	return ReactorParams{
		RatedPowerMW:         25.0,
		RatedTemperatureC:    350.0,
		MaxSafeTemperatureC:  400.0,
		CriticalTemperatureC: 450.0,
		MaxSafePressureBar:   150.0,
		ThermalMass:          50.0,
		CoolantCapacity:      0.5,
		ReactionTimeConstant: 10.0,
		ThaumicDecayRate:     0.01,
		ThaumicRecoveryRate:  0.05,
	}
}

// ReactorState is the reactor's continuous physical state.
type ReactorState struct {
	CoreTemperatureC        float64
	CoolantTemperatureC     float64
	VesselPressureBar       float64
	CoolantFlowRate         float64
	ReactionRate            float64
	PowerOutputMW           float64
	ThaumicFieldStrength    float64
	ContainmentIntegrity    float64
	CumulativeOvertempTimeS float64
	DamageLevel             float64
	ScramActive             bool
}

// ReactorIntegrator advances a single alchemical reactor's continuous
// state. Register layout: holding_registers[10-12] are power setpoint,
// coolant pump speed, and control rod position; coils[10]/[11] are
// emergency_shutdown and thaumic_dampener_enabled. Telemetry — core and
// coolant temperature, pressure, reaction rate, thaumic field,
// containment, and derived status flags — is published to
// input_registers/discrete_inputs.
type ReactorIntegrator struct {
	deviceName string
	params     ReactorParams
	state      ReactorState
	simTime    float64

	powerSetpointPercent  float64
	coolantPumpSpeed      float64
	controlRodsPosition   float64
	emergencyShutdown     bool
	thaumicDampenerEnable bool
}

// NewReactorIntegrator creates a reactor integrator bound to deviceName.
// Its own simTime accumulator, advanced once per Update(dt), drives the
// deterministic thaumic-fluctuation terms (the original's
// math.sin(sim_time.now() * k) oscillations) without reaching for the clock.
func NewReactorIntegrator(deviceName string, params ReactorParams) *ReactorIntegrator {
	return &ReactorIntegrator{
		deviceName: deviceName,
		params:     params,
		state: ReactorState{
			CoreTemperatureC:     25.0,
			CoolantTemperatureC:  25.0,
			VesselPressureBar:    1.0,
			ThaumicFieldStrength: 1.0,
			ContainmentIntegrity: 1.0,
		},
		controlRodsPosition:   100.0,
		thaumicDampenerEnable: true,
	}
}

func (r *ReactorIntegrator) DeviceName() string { return r.deviceName }

func (r *ReactorIntegrator) ReadControls(f *fabric.Fabric) {
	keys := map[string]*float64{
		"holding_registers[10]": &r.powerSetpointPercent,
		"holding_registers[11]": &r.coolantPumpSpeed,
		"holding_registers[12]": &r.controlRodsPosition,
	}
	for s, dst := range keys {
		key, _ := model.ParseKey(s)
		if v, ok, _ := f.Read(r.deviceName, key); ok {
			*dst = float64(v.(uint16))
		}
	}

	shutdownKey, _ := model.ParseKey("coils[10]")
	if v, ok, _ := f.Read(r.deviceName, shutdownKey); ok {
		r.emergencyShutdown = v.(bool)
	}
	dampenerKey, _ := model.ParseKey("coils[11]")
	if v, ok, _ := f.Read(r.deviceName, dampenerKey); ok {
		r.thaumicDampenerEnable = v.(bool)
	} else {
		r.thaumicDampenerEnable = true
	}
}

func (r *ReactorIntegrator) Update(dt float64) {
	if dt <= 0 {
		return
	}
	r.simTime += dt

	if r.emergencyShutdown || r.state.ScramActive {
		r.emergencyShutdownStep(dt)
		return
	}

	if r.state.CoreTemperatureC > r.params.CriticalTemperatureC || r.state.ContainmentIntegrity < 0.5 {
		r.state.ScramActive = true
		r.emergencyShutdownStep(dt)
		return
	}

	r.updateReactionRate(dt)
	r.updateTemperatures(dt)
	r.updatePressure()
	r.updateThaumicField(dt)
	r.updatePowerOutput()
	r.updateDamage(dt)
}

func (r *ReactorIntegrator) updateReactionRate(dt float64) {
	setpoint := clamp(r.powerSetpointPercent, 0, 100)
	rods := clamp(r.controlRodsPosition, 0, 100)

	maxReaction := rods / 100.0
	target := math.Min(setpoint/100.0, maxReaction)

	if r.state.ThaumicFieldStrength < 0.8 {
		instability := 1.0 - r.state.ThaumicFieldStrength
		fluctuation := math.Sin(r.simTime*2.0) * instability * 0.2
		target *= 1.0 + fluctuation
	}

	rateError := target - r.state.ReactionRate
	r.state.ReactionRate += rateError * (dt / r.params.ReactionTimeConstant)
	r.state.ReactionRate = clamp(r.state.ReactionRate, 0, 1.5)
}

func (r *ReactorIntegrator) updateTemperatures(dt float64) {
	r.state.CoolantFlowRate = clamp(r.coolantPumpSpeed, 0, 100) / 100.0

	heatGenerated := r.state.ReactionRate * r.params.RatedPowerMW
	tempDiff := r.state.CoreTemperatureC - r.state.CoolantTemperatureC
	heatRemoved := r.state.CoolantFlowRate * r.params.CoolantCapacity * math.Max(0, tempDiff)

	netHeat := heatGenerated - heatRemoved
	r.state.CoreTemperatureC += netHeat * dt / r.params.ThermalMass

	if r.state.CoolantFlowRate > 0.01 {
		coolantTarget := 25.0 + (r.state.CoreTemperatureC-25.0)*0.3
		coolantErr := coolantTarget - r.state.CoolantTemperatureC
		r.state.CoolantTemperatureC += coolantErr * 0.1 * dt
	} else {
		r.state.CoolantTemperatureC += (r.state.CoreTemperatureC - r.state.CoolantTemperatureC) * 0.01 * dt
	}

	if r.state.CoreTemperatureC < 30.0 && r.state.ReactionRate < 0.01 {
		const ambient = 25.0
		r.state.CoreTemperatureC += (ambient - r.state.CoreTemperatureC) * 0.01 * dt
		r.state.CoolantTemperatureC += (ambient - r.state.CoolantTemperatureC) * 0.05 * dt
	}

	r.state.CoreTemperatureC = math.Max(25.0, r.state.CoreTemperatureC)
	r.state.CoolantTemperatureC = math.Max(25.0, r.state.CoolantTemperatureC)
}

func (r *ReactorIntegrator) updatePressure() {
	const basePressure = 1.0
	tempPressure := (r.params.MaxSafePressureBar - basePressure) *
		((r.state.CoreTemperatureC - 25.0) / (r.params.RatedTemperatureC - 25.0))
	r.state.VesselPressureBar = math.Max(basePressure, basePressure+tempPressure)

	if r.state.ThaumicFieldStrength < 0.7 {
		instability := 1.0 - r.state.ThaumicFieldStrength
		r.state.VesselPressureBar += math.Sin(r.simTime*3.0) * instability * 10.0
	}
}

func (r *ReactorIntegrator) updateThaumicField(dt float64) {
	powerStress := r.state.ReactionRate
	tempStress := math.Max(0, (r.state.CoreTemperatureC-r.params.RatedTemperatureC)/100.0)
	totalStress := powerStress*0.3 + tempStress*0.5

	var recovery, decay float64
	if r.thaumicDampenerEnable {
		recovery = r.params.ThaumicRecoveryRate * dt
		decay = totalStress * r.params.ThaumicDecayRate * dt * 0.5
	} else {
		recovery = r.params.ThaumicRecoveryRate * dt * 0.2
		decay = totalStress * r.params.ThaumicDecayRate * dt * 2.0
	}

	r.state.ThaumicFieldStrength = clamp(r.state.ThaumicFieldStrength+recovery-decay, 0, 1)

	if r.state.ThaumicFieldStrength < 0.3 {
		containmentDamage := (0.3 - r.state.ThaumicFieldStrength) * 0.01 * dt
		r.state.ContainmentIntegrity = math.Max(0, r.state.ContainmentIntegrity-containmentDamage)
	}
}

func (r *ReactorIntegrator) updatePowerOutput() {
	var efficiency float64
	switch {
	case r.state.CoreTemperatureC > r.params.MaxSafeTemperatureC:
		efficiency = 0.8
	case r.state.CoreTemperatureC < 100.0:
		efficiency = 0.5
	default:
		efficiency = 1.0
	}
	r.state.PowerOutputMW = r.state.ReactionRate * r.params.RatedPowerMW * efficiency
}

func (r *ReactorIntegrator) updateDamage(dt float64) {
	if r.state.CoreTemperatureC <= r.params.MaxSafeTemperatureC {
		return
	}
	r.state.CumulativeOvertempTimeS += dt
	overtemp := r.state.CoreTemperatureC - r.params.MaxSafeTemperatureC
	damageRate := overtemp / 100.0 * 0.01
	r.state.DamageLevel = math.Min(1.0, r.state.DamageLevel+damageRate*dt)
}

func (r *ReactorIntegrator) emergencyShutdownStep(dt float64) {
	r.state.ScramActive = true

	r.state.ReactionRate *= math.Pow(0.5, dt/2.0)
	if r.state.ReactionRate < 0.001 {
		r.state.ReactionRate = 0
	}
	decayHeat := r.state.ReactionRate * r.params.RatedPowerMW * 0.07

	r.state.CoolantFlowRate = 1.0

	tempDiff := r.state.CoreTemperatureC - 25.0
	coolingRate := r.params.CoolantCapacity*tempDiff - decayHeat
	tempChange := coolingRate * dt / r.params.ThermalMass
	if tempChange > 0 {
		r.state.CoreTemperatureC -= tempChange
	}
	r.state.CoreTemperatureC = math.Max(25.0, r.state.CoreTemperatureC)

	r.state.ThaumicFieldStrength = math.Min(1.0, r.state.ThaumicFieldStrength+r.params.ThaumicRecoveryRate*dt)

	r.updatePressure()
	r.updatePowerOutput()
}

// ResetScram attempts to clear a SCRAM condition, mirroring the
// original's operator-initiated reset interlock: it only succeeds once
// temperature, thaumic field, and containment are all back within safe
// bounds.
func (r *ReactorIntegrator) ResetScram() bool {
	if r.state.CoreTemperatureC < r.params.RatedTemperatureC &&
		r.state.ThaumicFieldStrength > 0.8 &&
		r.state.ContainmentIntegrity > 0.9 {
		r.state.ScramActive = false
		return true
	}
	return false
}

func (r *ReactorIntegrator) WriteTelemetry(f *fabric.Fabric) {
	partial := model.NewMemoryMap()

	partial.InputRegisters[0] = toU16(r.state.CoreTemperatureC)
	partial.InputRegisters[1] = toU16(r.state.CoolantTemperatureC)
	partial.InputRegisters[2] = toU16(r.state.VesselPressureBar * 10)
	partial.InputRegisters[3] = toU16(r.state.PowerOutputMW * 10)
	partial.InputRegisters[4] = toU16(r.state.ThaumicFieldStrength * 100)
	partial.InputRegisters[5] = toU16(r.state.ReactionRate * 100)
	partial.InputRegisters[6] = toU16(r.state.CoolantFlowRate * 100)
	partial.InputRegisters[7] = toU16(r.state.ContainmentIntegrity * 100)
	partial.InputRegisters[8] = toU16(r.state.CumulativeOvertempTimeS)
	partial.InputRegisters[9] = toU16(r.state.DamageLevel * 100)

	partial.DiscreteInputs[0] = r.state.ReactionRate > 0.01
	partial.DiscreteInputs[1] = r.state.CoreTemperatureC > r.params.MaxSafeTemperatureC
	partial.DiscreteInputs[2] = r.state.VesselPressureBar > r.params.MaxSafePressureBar
	partial.DiscreteInputs[3] = r.state.ThaumicFieldStrength < 0.5
	partial.DiscreteInputs[4] = r.state.ContainmentIntegrity < 0.8
	partial.DiscreteInputs[5] = r.state.ScramActive
	partial.DiscreteInputs[6] = r.state.DamageLevel > 0.5

	f.WriteBulk(r.deviceName, partial)
}

// State returns a copy of the integrator's current physical state.
func (r *ReactorIntegrator) State() ReactorState { return r.state }
