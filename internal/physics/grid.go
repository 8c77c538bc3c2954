package physics

import (
	"github.com/icsim/simcore/internal/clock"
	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

// GridParams mirrors original_source/components/physics/
// grid_physics.py's GridParameters dataclass defaults.
type GridParams struct {
	NominalFrequencyHz  float64
	FrequencyDeadbandHz float64
	MaxFrequencyHz      float64
	MinFrequencyHz      float64
	VoltageDeadbandPU   float64
	MaxVoltagePU        float64
	MinVoltagePU        float64
	InertiaConstant     float64 // MW·s
	Damping             float64 // MW/Hz
}

// DefaultGridParams returns the spec's §4.3.4 defaults.
func DefaultGridParams() GridParams {
	return GridParams{
		NominalFrequencyHz:  50.0,
		FrequencyDeadbandHz: 0.2,
		MaxFrequencyHz:      51.0,
		MinFrequencyHz:      49.0,
		VoltageDeadbandPU:   0.05,
		MaxVoltagePU:        1.1,
		MinVoltagePU:        0.9,
		InertiaConstant:     5000.0,
		Damping:             1.0,
	}
}

// GridState is the grid-wide aggregate physical state (no owning
// device — the orchestrator runs one GridIntegrator per simulation).
type GridState struct {
	FrequencyHz       float64
	VoltagePU         float64
	TotalLoadMW       float64
	TotalGenMW        float64
	UnderFrequencyTrip bool
	OverFrequencyTrip  bool
	UndervoltageTrip   bool
	OvervoltageTrip    bool
}

// GridIntegrator advances system-wide frequency and voltage by the
// swing equation. It has no owning device and is driven directly by
// the orchestrator rather than through the per-device Integrator
// contract: AggregateFromDevices first, then Update.
type GridIntegrator struct {
	params GridParams
	state  GridState
	clk    *clock.Clock

	loadMW      float64
	tripLatched bool
	generators  []string
}

// NewGridIntegrator creates a grid integrator starting at nominal
// frequency and unity voltage. loadMW is the configured aggregate
// system load (spec §4.3.4's "aggregate load field" — set at boot from
// the scenario configuration, not hardcoded).
func NewGridIntegrator(params GridParams, loadMW float64, clk *clock.Clock) *GridIntegrator {
	return &GridIntegrator{
		params: params,
		state: GridState{
			FrequencyHz: params.NominalFrequencyHz,
			VoltagePU:   1.0,
		},
		clk:    clk,
		loadMW: loadMW,
	}
}

// SetLoad updates the aggregate system load, e.g. in response to a
// scenario script or operator action.
func (g *GridIntegrator) SetLoad(loadMW float64) { g.loadMW = loadMW }

// SetGenerators names the turbine devices this grid aggregates
// generation from, translating the original's
// get_devices_by_type("turbine_plc") device-type lookup into this
// kernel's boot-time wiring: the orchestrator knows exactly which
// device names got a TurbineIntegrator built for them (buildIntegrators,
// from scenario.Turbines), and hands that list here once at boot.
func (g *GridIntegrator) SetGenerators(names []string) {
	g.generators = append([]string(nil), names...)
}

// AggregateFromDevices sums power_mw telemetry (input_registers[5])
// across the configured turbine generators.
func (g *GridIntegrator) AggregateFromDevices(f *fabric.Fabric) {
	key, _ := model.ParseKey("input_registers[5]")
	var totalGen float64
	for _, name := range g.generators {
		if v, ok, _ := f.Read(name, key); ok {
			totalGen += float64(v.(uint16))
		}
	}
	g.state.TotalGenMW = totalGen
	g.state.TotalLoadMW = g.loadMW
}

// Update advances grid frequency/voltage by dt and returns any
// newly-latched protection events (GridTrip fires at most once until
// externally reset, per spec §4.3.4).
func (g *GridIntegrator) Update(dt float64) []model.Event {
	if dt <= 0 {
		return nil
	}

	imbalance := g.state.TotalGenMW - g.state.TotalLoadMW
	freqDeviation := g.state.FrequencyHz - g.params.NominalFrequencyHz
	dampingMW := g.params.Damping * freqDeviation
	netPower := imbalance - dampingMW

	dfdt := netPower / (2 * g.params.InertiaConstant)
	g.state.FrequencyHz += dfdt * dt

	voltageDeviation := imbalance / 10000.0
	g.state.VoltagePU = 1.0 + voltageDeviation

	return g.updateProtection()
}

func (g *GridIntegrator) updateProtection() []model.Event {
	g.state.UnderFrequencyTrip = g.state.FrequencyHz < g.params.MinFrequencyHz
	g.state.OverFrequencyTrip = g.state.FrequencyHz > g.params.MaxFrequencyHz
	g.state.UndervoltageTrip = g.state.VoltagePU < g.params.MinVoltagePU
	g.state.OvervoltageTrip = g.state.VoltagePU > g.params.MaxVoltagePU

	tripped := g.state.UnderFrequencyTrip || g.state.OverFrequencyTrip ||
		g.state.UndervoltageTrip || g.state.OvervoltageTrip

	if tripped && !g.tripLatched {
		g.tripLatched = true
		return []model.Event{model.NewEvent(model.EventGridTrip, g.simNow(), "grid", map[string]any{
			"frequency_hz":          g.state.FrequencyHz,
			"voltage_pu":            g.state.VoltagePU,
			"under_frequency_trip":  g.state.UnderFrequencyTrip,
			"over_frequency_trip":   g.state.OverFrequencyTrip,
		})}
	}
	return nil
}

// ResetTrip clears the grid trip latch, allowing a future crossing to
// re-emit GridTrip.
func (g *GridIntegrator) ResetTrip() { g.tripLatched = false }

func (g *GridIntegrator) simNow() float64 {
	if g.clk == nil {
		return 0
	}
	return g.clk.Now()
}

// State returns a copy of the grid's current aggregate state.
func (g *GridIntegrator) State() GridState { return g.state }
