package physics

import (
	"math"

	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

// HVAC operating modes, mirrored from the original's MODE_* constants.
const (
	HVACModeOff  = 0
	HVACModeHeat = 1
	HVACModeCool = 2
	HVACModeAuto = 3
)

// HVACParams mirrors original_source/components/physics/
// hvac_physics.py's HVACParameters dataclass defaults.
type HVACParams struct {
	ZoneThermalMass        float64 // kJ/°C
	ZoneVolumeM3           float64
	RatedHeatingKW         float64
	RatedCoolingKW         float64
	RatedAirflowM3S        float64
	MinHumidityPercent     float64
	MaxHumidityPercent     float64
	MinTemperatureC        float64
	MaxTemperatureC        float64
	OutsideTempC           float64
	OutsideHumidityPercent float64
	LspaceThresholdTempC   float64
	LspaceThresholdHumidity float64
}

// DefaultHVACParams returns the spec's §4.3.3 defaults.
func DefaultHVACParams() HVACParams {
	return HVACParams{
		ZoneThermalMass:         500.0,
		ZoneVolumeM3:            5000.0,
		RatedHeatingKW:          50.0,
		RatedCoolingKW:          75.0,
		RatedAirflowM3S:         5.0,
		MinHumidityPercent:      40.0,
		MaxHumidityPercent:      55.0,
		MinTemperatureC:         18.0,
		MaxTemperatureC:         22.0,
		OutsideTempC:            10.0,
		OutsideHumidityPercent:  70.0,
		LspaceThresholdTempC:    25.0,
		LspaceThresholdHumidity: 60.0,
	}
}

// HVACState is the air-handling unit's continuous physical state.
type HVACState struct {
	ZoneTemperatureC        float64
	ZoneHumidityPercent     float64
	SupplyAirTempC          float64
	ReturnAirTempC          float64
	DuctPressurePA          float64
	FanSpeedPercent         float64
	HeatingValvePercent     float64
	CoolingValvePercent     float64
	DamperPositionPercent   float64
	HumidifierOutputPercent float64
	LspaceStability         float64
	EnergyConsumptionKW     float64
}

// HVACIntegrator advances a single air-handling unit's continuous
// state. Register layout: holding_registers[10-14] are temperature
// setpoint, humidity setpoint, fan speed command, mode select, and
// damper command; coils[10]/[11] are system_enable and
// lspace_dampener_enable. Telemetry is published to
// input_registers/discrete_inputs.
type HVACIntegrator struct {
	deviceName string
	params     HVACParams
	state      HVACState
	simTime    float64

	tempIntegral     float64
	humidityIntegral float64

	tempSetpointC        float64
	humiditySetpoint     float64
	fanSpeedCommand      float64
	modeSelect           int
	damperCommand        float64
	systemEnable         bool
	lspaceDampenerEnable bool
}

// NewHVACIntegrator creates an HVAC integrator bound to deviceName. Its
// own simTime accumulator, advanced once per Update(dt), drives the
// deterministic l-space instability fluctuation terms without reaching
// for the clock.
func NewHVACIntegrator(deviceName string, params HVACParams) *HVACIntegrator {
	return &HVACIntegrator{
		deviceName: deviceName,
		params:     params,
		state: HVACState{
			ZoneTemperatureC:    20.0,
			ZoneHumidityPercent: 45.0,
			SupplyAirTempC:      20.0,
			ReturnAirTempC:      20.0,
			LspaceStability:     1.0,
		},
		tempSetpointC:        20.0,
		humiditySetpoint:     45.0,
		lspaceDampenerEnable: true,
	}
}

func (h *HVACIntegrator) DeviceName() string { return h.deviceName }

func (h *HVACIntegrator) ReadControls(f *fabric.Fabric) {
	regs := map[string]*float64{
		"holding_registers[10]": &h.tempSetpointC,
		"holding_registers[11]": &h.humiditySetpoint,
		"holding_registers[12]": &h.fanSpeedCommand,
		"holding_registers[14]": &h.damperCommand,
	}
	for s, dst := range regs {
		key, _ := model.ParseKey(s)
		if v, ok, _ := f.Read(h.deviceName, key); ok {
			*dst = float64(v.(uint16))
		}
	}
	modeKey, _ := model.ParseKey("holding_registers[13]")
	if v, ok, _ := f.Read(h.deviceName, modeKey); ok {
		h.modeSelect = int(v.(uint16))
	}

	enableKey, _ := model.ParseKey("coils[10]")
	if v, ok, _ := f.Read(h.deviceName, enableKey); ok {
		h.systemEnable = v.(bool)
	}
	dampenerKey, _ := model.ParseKey("coils[11]")
	if v, ok, _ := f.Read(h.deviceName, dampenerKey); ok {
		h.lspaceDampenerEnable = v.(bool)
	} else {
		h.lspaceDampenerEnable = true
	}
}

func (h *HVACIntegrator) Update(dt float64) {
	if dt <= 0 {
		return
	}
	h.simTime += dt

	if !h.systemEnable {
		h.systemOff(dt)
		return
	}

	h.updateFan(dt)
	h.updateDamper(dt)
	h.updateHeatingCooling(dt)
	h.updateZoneTemperature(dt)
	h.updateHumidity(dt)
	h.updateLspaceStability(dt)
	h.updateEnergyConsumption()
}

func (h *HVACIntegrator) systemOff(dt float64) {
	h.state.FanSpeedPercent *= math.Pow(0.9, dt)
	if h.state.FanSpeedPercent < 1.0 {
		h.state.FanSpeedPercent = 0
	}
	h.state.HeatingValvePercent *= math.Pow(0.8, dt)
	h.state.CoolingValvePercent *= math.Pow(0.8, dt)
	h.state.DamperPositionPercent *= math.Pow(0.9, dt)
	h.state.DuctPressurePA *= math.Pow(0.7, dt)

	const driftRate = 0.001
	h.state.ZoneTemperatureC += (h.params.OutsideTempC - h.state.ZoneTemperatureC) * driftRate * dt
	h.state.ZoneHumidityPercent += (h.params.OutsideHumidityPercent - h.state.ZoneHumidityPercent) * driftRate * dt

	if h.state.LspaceStability > 0.5 {
		h.state.LspaceStability = math.Max(0.5, h.state.LspaceStability-0.001*dt)
	}

	h.state.EnergyConsumptionKW *= math.Pow(0.5, dt)
	if h.state.EnergyConsumptionKW < 0.1 {
		h.state.EnergyConsumptionKW = 0
	}
}

func (h *HVACIntegrator) updateFan(dt float64) {
	cmd := clamp(h.fanSpeedCommand, 0, 100)
	speedError := cmd - h.state.FanSpeedPercent
	const fanTC = 5.0
	h.state.FanSpeedPercent = clamp(h.state.FanSpeedPercent+speedError*(dt/fanTC), 0, 100)

	const maxPressure = 500.0
	ratio := h.state.FanSpeedPercent / 100.0
	targetPressure := maxPressure * ratio * ratio
	pressureError := targetPressure - h.state.DuctPressurePA
	h.state.DuctPressurePA += pressureError * 0.5 * dt
}

func (h *HVACIntegrator) updateDamper(dt float64) {
	cmd := clamp(h.damperCommand, 0, 100)
	damperError := cmd - h.state.DamperPositionPercent
	const damperTC = 30.0
	h.state.DamperPositionPercent = clamp(h.state.DamperPositionPercent+damperError*(dt/damperTC), 0, 100)
}

func (h *HVACIntegrator) updateHeatingCooling(dt float64) {
	setpoint := clamp(h.tempSetpointC, h.params.MinTemperatureC, h.params.MaxTemperatureC)
	tempError := setpoint - h.state.ZoneTemperatureC

	const kp, ki = 10.0, 0.5
	h.tempIntegral = clamp(h.tempIntegral+tempError*dt, -50, 50)
	controlOutput := kp*tempError + ki*h.tempIntegral

	switch h.modeSelect {
	case HVACModeOff:
		h.state.HeatingValvePercent = 0
		h.state.CoolingValvePercent = 0
	case HVACModeHeat:
		h.state.HeatingValvePercent = clamp(controlOutput, 0, 100)
		h.state.CoolingValvePercent = 0
	case HVACModeCool:
		h.state.HeatingValvePercent = 0
		h.state.CoolingValvePercent = clamp(-controlOutput, 0, 100)
	case HVACModeAuto:
		if controlOutput > 0 {
			h.state.HeatingValvePercent = clamp(controlOutput, 0, 100)
			h.state.CoolingValvePercent = 0
		} else {
			h.state.HeatingValvePercent = 0
			h.state.CoolingValvePercent = clamp(-controlOutput, 0, 100)
		}
	}

	switch {
	case h.state.HeatingValvePercent > 0:
		h.state.SupplyAirTempC = h.state.ReturnAirTempC + h.state.HeatingValvePercent/100.0*15.0
	case h.state.CoolingValvePercent > 0:
		h.state.SupplyAirTempC = h.state.ReturnAirTempC - h.state.CoolingValvePercent/100.0*10.0
	default:
		mixing := h.state.DamperPositionPercent / 100.0
		h.state.SupplyAirTempC = h.state.ReturnAirTempC*(1-mixing) + h.params.OutsideTempC*mixing
	}
}

func (h *HVACIntegrator) updateZoneTemperature(dt float64) {
	airflow := (h.state.FanSpeedPercent / 100.0) * h.params.RatedAirflowM3S
	const airHeatCapacity = 1.2
	tempDiff := h.state.SupplyAirTempC - h.state.ZoneTemperatureC
	heatFromAir := airflow * airHeatCapacity * tempDiff

	const uaValue = 0.5
	heatLoss := uaValue * (h.state.ZoneTemperatureC - h.params.OutsideTempC)

	internalGains := 5.0
	if h.state.LspaceStability < 0.7 {
		instability := 1.0 - h.state.LspaceStability
		internalGains += math.Sin(h.simTime*0.5) * instability * 2.0
	}

	netHeat := heatFromAir - heatLoss + internalGains
	h.state.ZoneTemperatureC += netHeat * dt / h.params.ZoneThermalMass
	h.state.ReturnAirTempC = h.state.ZoneTemperatureC + 0.5
}

func (h *HVACIntegrator) updateHumidity(dt float64) {
	setpoint := clamp(h.humiditySetpoint, h.params.MinHumidityPercent, h.params.MaxHumidityPercent)
	humidityError := setpoint - h.state.ZoneHumidityPercent

	const kp, ki = 2.0, 0.1
	h.humidityIntegral = clamp(h.humidityIntegral+humidityError*dt, -100, 100)
	controlOutput := kp*humidityError + ki*h.humidityIntegral

	if controlOutput > 0 {
		h.state.HumidifierOutputPercent = clamp(controlOutput, 0, 100)
	} else {
		h.state.HumidifierOutputPercent = 0
	}

	humidifierEffect := h.state.HumidifierOutputPercent / 100.0 * 5.0 * dt
	airflowFraction := h.state.FanSpeedPercent / 100.0
	damperFraction := h.state.DamperPositionPercent / 100.0
	outsideAirEffect := (h.params.OutsideHumidityPercent - h.state.ZoneHumidityPercent) *
		airflowFraction * damperFraction * 0.01 * dt

	naturalSources := 0.1 * dt
	if h.state.LspaceStability < 0.6 {
		instability := 1.0 - h.state.LspaceStability
		naturalSources += math.Cos(h.simTime*0.3) * instability * 3.0 * dt
	}

	h.state.ZoneHumidityPercent = clamp(
		h.state.ZoneHumidityPercent+humidifierEffect+outsideAirEffect+naturalSources,
		10, 90,
	)
}

func (h *HVACIntegrator) updateLspaceStability(dt float64) {
	var tempStress float64
	switch {
	case h.state.ZoneTemperatureC > h.params.LspaceThresholdTempC:
		tempStress = (h.state.ZoneTemperatureC - h.params.LspaceThresholdTempC) / 10.0
	case h.state.ZoneTemperatureC < h.params.MinTemperatureC:
		tempStress = (h.params.MinTemperatureC - h.state.ZoneTemperatureC) / 10.0
	}

	var humidityStress float64
	switch {
	case h.state.ZoneHumidityPercent > h.params.LspaceThresholdHumidity:
		humidityStress = (h.state.ZoneHumidityPercent - h.params.LspaceThresholdHumidity) / 20.0
	case h.state.ZoneHumidityPercent < h.params.MinHumidityPercent:
		humidityStress = (h.params.MinHumidityPercent - h.state.ZoneHumidityPercent) / 20.0
	}

	totalStress := tempStress + humidityStress

	var recovery, decay float64
	if h.lspaceDampenerEnable {
		recovery = 0.02
		decay = 0.01 * totalStress
	} else {
		recovery = 0.005
		decay = 0.05 * totalStress
	}

	h.state.LspaceStability = clamp(h.state.LspaceStability+(recovery-decay)*dt, 0, 1)
}

func (h *HVACIntegrator) updateEnergyConsumption() {
	fanRatio := h.state.FanSpeedPercent / 100.0
	fanPower := 15.0 * fanRatio * fanRatio * fanRatio
	heatingPower := h.params.RatedHeatingKW * h.state.HeatingValvePercent / 100.0
	coolingPower := h.params.RatedCoolingKW * h.state.CoolingValvePercent / 100.0 / 3.0
	humidifierPower := 5.0 * h.state.HumidifierOutputPercent / 100.0

	dampenerPower := 0.5
	if h.state.LspaceStability < 0.9 {
		dampenerPower = 2.0
	}

	h.state.EnergyConsumptionKW = fanPower + heatingPower + coolingPower + humidifierPower + dampenerPower
}

func (h *HVACIntegrator) WriteTelemetry(f *fabric.Fabric) {
	partial := model.NewMemoryMap()

	partial.InputRegisters[0] = toU16(h.state.ZoneTemperatureC * 10)
	partial.InputRegisters[1] = toU16(h.state.ZoneHumidityPercent * 10)
	partial.InputRegisters[2] = toU16(h.state.SupplyAirTempC * 10)
	partial.InputRegisters[3] = toU16(h.state.DuctPressurePA)
	partial.InputRegisters[4] = toU16(h.state.LspaceStability * 100)
	partial.InputRegisters[5] = toU16(h.state.FanSpeedPercent)
	partial.InputRegisters[6] = toU16(h.state.HeatingValvePercent)
	partial.InputRegisters[7] = toU16(h.state.CoolingValvePercent)
	partial.InputRegisters[8] = toU16(h.state.DamperPositionPercent)
	partial.InputRegisters[9] = toU16(h.state.EnergyConsumptionKW * 10)

	partial.DiscreteInputs[0] = h.state.FanSpeedPercent > 5.0
	partial.DiscreteInputs[1] = h.state.HeatingValvePercent > 5.0
	partial.DiscreteInputs[2] = h.state.CoolingValvePercent > 5.0
	partial.DiscreteInputs[3] = h.state.ZoneTemperatureC < h.params.MinTemperatureC || h.state.ZoneTemperatureC > h.params.MaxTemperatureC
	partial.DiscreteInputs[4] = h.state.ZoneHumidityPercent < h.params.MinHumidityPercent || h.state.ZoneHumidityPercent > h.params.MaxHumidityPercent
	partial.DiscreteInputs[5] = h.state.LspaceStability < 0.5
	partial.DiscreteInputs[6] = h.state.LspaceStability < 0.3

	f.WriteBulk(h.deviceName, partial)
}

// State returns a copy of the integrator's current physical state.
func (h *HVACIntegrator) State() HVACState { return h.state }
