package orchestrator

import (
	"github.com/icsim/simcore/internal/physics"
	"github.com/icsim/simcore/pkg/config"
)

// overlay* functions start from a physics package's own defaults and
// apply only the fields a scenario entry sets to a non-zero value, so
// an omitted field keeps spec's documented default rather than
// silently zeroing it out.

func overlayTurbineParams(s config.TurbineScenario) physics.TurbineParams {
	p := physics.DefaultTurbineParams()
	if s.RatedSpeedRPM != 0 {
		p.RatedSpeedRPM = s.RatedSpeedRPM
	}
	if s.RatedPowerMW != 0 {
		p.RatedPowerMW = s.RatedPowerMW
	}
	if s.MaxSafeSpeedRPM != 0 {
		p.MaxSafeSpeedRPM = s.MaxSafeSpeedRPM
	}
	if s.AccelRPMPerS != 0 {
		p.AccelRPMPerS = s.AccelRPMPerS
	}
	if s.DecelRPMPerS != 0 {
		p.DecelRPMPerS = s.DecelRPMPerS
	}
	if s.VibrationNormalMils != 0 {
		p.VibrationNormalMils = s.VibrationNormalMils
	}
	if s.VibrationCriticalMils != 0 {
		p.VibrationCriticalMils = s.VibrationCriticalMils
	}
	if s.BearingCriticalC != 0 {
		p.BearingCriticalC = s.BearingCriticalC
	}
	return p
}

func overlayReactorParams(s config.ReactorScenario) physics.ReactorParams {
	p := physics.DefaultReactorParams()
	if s.RatedPowerMW != 0 {
		p.RatedPowerMW = s.RatedPowerMW
	}
	if s.RatedTemperatureC != 0 {
		p.RatedTemperatureC = s.RatedTemperatureC
	}
	if s.MaxSafeTemperatureC != 0 {
		p.MaxSafeTemperatureC = s.MaxSafeTemperatureC
	}
	if s.CriticalTemperatureC != 0 {
		p.CriticalTemperatureC = s.CriticalTemperatureC
	}
	if s.MaxSafePressureBar != 0 {
		p.MaxSafePressureBar = s.MaxSafePressureBar
	}
	if s.ThermalMass != 0 {
		p.ThermalMass = s.ThermalMass
	}
	if s.CoolantCapacity != 0 {
		p.CoolantCapacity = s.CoolantCapacity
	}
	if s.ReactionTimeConstant != 0 {
		p.ReactionTimeConstant = s.ReactionTimeConstant
	}
	if s.ThaumicDecayRate != 0 {
		p.ThaumicDecayRate = s.ThaumicDecayRate
	}
	if s.ThaumicRecoveryRate != 0 {
		p.ThaumicRecoveryRate = s.ThaumicRecoveryRate
	}
	return p
}

func overlayHVACParams(s config.HVACScenario) physics.HVACParams {
	p := physics.DefaultHVACParams()
	if s.ZoneThermalMass != 0 {
		p.ZoneThermalMass = s.ZoneThermalMass
	}
	if s.ZoneVolumeM3 != 0 {
		p.ZoneVolumeM3 = s.ZoneVolumeM3
	}
	if s.RatedHeatingKW != 0 {
		p.RatedHeatingKW = s.RatedHeatingKW
	}
	if s.RatedCoolingKW != 0 {
		p.RatedCoolingKW = s.RatedCoolingKW
	}
	if s.RatedAirflowM3S != 0 {
		p.RatedAirflowM3S = s.RatedAirflowM3S
	}
	if s.MinHumidityPercent != 0 {
		p.MinHumidityPercent = s.MinHumidityPercent
	}
	if s.MaxHumidityPercent != 0 {
		p.MaxHumidityPercent = s.MaxHumidityPercent
	}
	if s.MinTemperatureC != 0 {
		p.MinTemperatureC = s.MinTemperatureC
	}
	if s.MaxTemperatureC != 0 {
		p.MaxTemperatureC = s.MaxTemperatureC
	}
	if s.OutsideTempC != 0 {
		p.OutsideTempC = s.OutsideTempC
	}
	if s.OutsideHumidityPercent != 0 {
		p.OutsideHumidityPercent = s.OutsideHumidityPercent
	}
	if s.LspaceThresholdTempC != 0 {
		p.LspaceThresholdTempC = s.LspaceThresholdTempC
	}
	if s.LspaceThresholdHumidity != 0 {
		p.LspaceThresholdHumidity = s.LspaceThresholdHumidity
	}
	return p
}

func overlayGridParams(s config.GridScenario) physics.GridParams {
	p := physics.DefaultGridParams()
	if s.NominalFrequencyHz != 0 {
		p.NominalFrequencyHz = s.NominalFrequencyHz
	}
	if s.FrequencyDeadbandHz != 0 {
		p.FrequencyDeadbandHz = s.FrequencyDeadbandHz
	}
	if s.MaxFrequencyHz != 0 {
		p.MaxFrequencyHz = s.MaxFrequencyHz
	}
	if s.MinFrequencyHz != 0 {
		p.MinFrequencyHz = s.MinFrequencyHz
	}
	if s.VoltageDeadbandPU != 0 {
		p.VoltageDeadbandPU = s.VoltageDeadbandPU
	}
	if s.MaxVoltagePU != 0 {
		p.MaxVoltagePU = s.MaxVoltagePU
	}
	if s.MinVoltagePU != 0 {
		p.MinVoltagePU = s.MinVoltagePU
	}
	if s.InertiaConstant != 0 {
		p.InertiaConstant = s.InertiaConstant
	}
	if s.Damping != 0 {
		p.Damping = s.Damping
	}
	return p
}

func overlayPowerFlowParams(s *config.PowerFlowScenario) physics.PowerFlowParams {
	p := physics.DefaultPowerFlowParams()
	if s.BaseMVA != 0 {
		p.BaseMVA = s.BaseMVA
	}
	if s.LineMaxMVA != 0 {
		p.LineMaxMVA = s.LineMaxMVA
	}
	return p
}
