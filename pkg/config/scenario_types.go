package config

// Scenario is the physics-parameter overlay (spec §6's "scenario"
// sub-document): per-device overrides of the integrator defaults in
// internal/physics, plus the static power-flow topology. Any device
// not named here keeps DefaultTurbineParams/DefaultReactorParams/
// DefaultHVACParams/DefaultGridParams/DefaultPowerFlowParams.
type Scenario struct {
	Turbines   []TurbineScenario   `yaml:"turbines,omitempty"`
	Reactors   []ReactorScenario   `yaml:"reactors,omitempty"`
	HVACUnits  []HVACScenario      `yaml:"hvac_units,omitempty"`
	Grids      []GridScenario      `yaml:"grids,omitempty"`
	PowerFlow  *PowerFlowScenario  `yaml:"power_flow,omitempty"`
	SCADAUnits []SCADAScenario     `yaml:"scada_units,omitempty"`
	Historians []HistorianScenario `yaml:"historians,omitempty"`
	SafetyPLCs []SafetyScenario    `yaml:"safety_plcs,omitempty"`
}

// TurbineScenario overrides internal/physics.TurbineParams for one device.
type TurbineScenario struct {
	Device                string  `yaml:"device"`
	RatedSpeedRPM         float64 `yaml:"rated_speed_rpm,omitempty"`
	RatedPowerMW          float64 `yaml:"rated_power_mw,omitempty"`
	MaxSafeSpeedRPM       float64 `yaml:"max_safe_speed_rpm,omitempty"`
	AccelRPMPerS          float64 `yaml:"accel_rpm_per_s,omitempty"`
	DecelRPMPerS          float64 `yaml:"decel_rpm_per_s,omitempty"`
	VibrationNormalMils   float64 `yaml:"vibration_normal_mils,omitempty"`
	VibrationCriticalMils float64 `yaml:"vibration_critical_mils,omitempty"`
	BearingCriticalC      float64 `yaml:"bearing_critical_c,omitempty"`
}

// ReactorScenario overrides internal/physics.ReactorParams for one device.
type ReactorScenario struct {
	Device               string  `yaml:"device"`
	RatedPowerMW         float64 `yaml:"rated_power_mw,omitempty"`
	RatedTemperatureC    float64 `yaml:"rated_temperature_c,omitempty"`
	MaxSafeTemperatureC  float64 `yaml:"max_safe_temperature_c,omitempty"`
	CriticalTemperatureC float64 `yaml:"critical_temperature_c,omitempty"`
	MaxSafePressureBar   float64 `yaml:"max_safe_pressure_bar,omitempty"`
	ThermalMass          float64 `yaml:"thermal_mass,omitempty"`
	CoolantCapacity      float64 `yaml:"coolant_capacity,omitempty"`
	ReactionTimeConstant float64 `yaml:"reaction_time_constant,omitempty"`
	ThaumicDecayRate     float64 `yaml:"thaumic_decay_rate,omitempty"`
	ThaumicRecoveryRate  float64 `yaml:"thaumic_recovery_rate,omitempty"`
}

// HVACScenario overrides internal/physics.HVACParams for one device.
type HVACScenario struct {
	Device                  string  `yaml:"device"`
	ZoneThermalMass         float64 `yaml:"zone_thermal_mass,omitempty"`
	ZoneVolumeM3            float64 `yaml:"zone_volume_m3,omitempty"`
	RatedHeatingKW          float64 `yaml:"rated_heating_kw,omitempty"`
	RatedCoolingKW          float64 `yaml:"rated_cooling_kw,omitempty"`
	RatedAirflowM3S         float64 `yaml:"rated_airflow_m3s,omitempty"`
	MinHumidityPercent      float64 `yaml:"min_humidity_percent,omitempty"`
	MaxHumidityPercent      float64 `yaml:"max_humidity_percent,omitempty"`
	MinTemperatureC         float64 `yaml:"min_temperature_c,omitempty"`
	MaxTemperatureC         float64 `yaml:"max_temperature_c,omitempty"`
	OutsideTempC            float64 `yaml:"outside_temp_c,omitempty"`
	OutsideHumidityPercent  float64 `yaml:"outside_humidity_percent,omitempty"`
	LspaceThresholdTempC    float64 `yaml:"lspace_threshold_temp_c,omitempty"`
	LspaceThresholdHumidity float64 `yaml:"lspace_threshold_humidity,omitempty"`
}

// GridScenario overrides internal/physics.GridParams for one device,
// plus the fixed load the grid integrator balances against.
type GridScenario struct {
	Device              string  `yaml:"device"`
	LoadMW              float64 `yaml:"load_mw,omitempty"`
	NominalFrequencyHz  float64 `yaml:"nominal_frequency_hz,omitempty"`
	FrequencyDeadbandHz float64 `yaml:"frequency_deadband_hz,omitempty"`
	MaxFrequencyHz      float64 `yaml:"max_frequency_hz,omitempty"`
	MinFrequencyHz      float64 `yaml:"min_frequency_hz,omitempty"`
	VoltageDeadbandPU   float64 `yaml:"voltage_deadband_pu,omitempty"`
	MaxVoltagePU        float64 `yaml:"max_voltage_pu,omitempty"`
	MinVoltagePU        float64 `yaml:"min_voltage_pu,omitempty"`
	InertiaConstant     float64 `yaml:"inertia_constant,omitempty"`
	Damping             float64 `yaml:"damping,omitempty"`
}

// PowerFlowScenario describes the static bus/line topology the
// PowerFlowSolver is built from at boot step 4, plus its base MVA and
// per-line rating defaults.
type PowerFlowScenario struct {
	BaseMVA    float64    `yaml:"base_mva,omitempty"`
	LineMaxMVA float64    `yaml:"line_max_mva,omitempty"`
	Buses      []BusSpec  `yaml:"buses,omitempty"`
	Lines      []LineSpec `yaml:"lines,omitempty"`
}

// BusSpec is one power-flow bus, optionally owned by a device whose
// generation/load the solver aggregates from live telemetry each tick.
type BusSpec struct {
	Name   string `yaml:"name"`
	Device string `yaml:"device,omitempty"`
}

// LineSpec is one transmission line between two named buses.
type LineSpec struct {
	From        string  `yaml:"from"`
	To          string  `yaml:"to"`
	Susceptance float64 `yaml:"susceptance"`
	RatingMW    float64 `yaml:"rating_mw,omitempty"`
}

// TagSpec binds one SCADA tag to a peer device's memory-map key, plus
// the alarm limits evaluated on every scan (spec §4.4).
type TagSpec struct {
	Tag        string  `yaml:"tag"`
	PeerDevice string  `yaml:"peer_device"`
	Key        string  `yaml:"key"`
	LowLimit   float64 `yaml:"low_limit,omitempty"`
	HighLimit  float64 `yaml:"high_limit,omitempty"`
	Hysteresis float64 `yaml:"hysteresis,omitempty"`
}

// SCADAScenario wires a SCADA device's tag database (spec §4.4: "holds a
// tag database mapping logical tag names -> (peer_device, address_key)").
type SCADAScenario struct {
	Device string    `yaml:"device"`
	Tags   []TagSpec `yaml:"tags,omitempty"`
}

// HistorianTagSpec names one peer tag a Historian snapshots every scan.
type HistorianTagSpec struct {
	Tag        string `yaml:"tag"`
	PeerDevice string `yaml:"peer_device"`
	Key        string `yaml:"key"`
}

// HistorianScenario wires a Historian device's recorded tags and ring
// buffer capacity (spec §4.4, SPEC_FULL §12.6).
type HistorianScenario struct {
	Device   string             `yaml:"device"`
	Tags     []HistorianTagSpec `yaml:"tags,omitempty"`
	Capacity int                `yaml:"capacity,omitempty"`
}

// TripTargetSpec names one coil a Safety PLC is authorized to assert.
type TripTargetSpec struct {
	Device string `yaml:"device"`
	Key    string `yaml:"key"`
}

// SafetyScenario wires a Safety PLC's watched condition and authorized
// trip targets (spec §4.4, SPEC_FULL §12.5).
type SafetyScenario struct {
	Device      string           `yaml:"device"`
	WatchDevice string           `yaml:"watch_device"`
	WatchKey    string           `yaml:"watch_key"`
	Targets     []TripTargetSpec `yaml:"targets,omitempty"`
	EventType   string           `yaml:"event_type"`
	CooldownS   float64          `yaml:"cooldown_s,omitempty"`
}
