package physics

import (
	"fmt"
	"math"
	"sort"

	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

// Bus is a single node of the transmission network (spec §4.3.5's
// "bus injections"), grounded on the original's BusState dataclass.
type Bus struct {
	Name      string
	Device    string // owning turbine/load device, if any ("" for a pure junction bus)
	VoltagePU float64
	AngleRad  float64
	LoadMW    float64
	GenMW     float64
}

// Line is a transmission line between two buses, grounded on the
// original's LineState dataclass.
type Line struct {
	From, To  string
	Susceptance float64 // per-unit, positive
	RatingMW  float64
	FlowMW    float64
	Overload  bool
}

// PowerFlowParams mirrors the original's PowerFlowParameters.
type PowerFlowParams struct {
	BaseMVA     float64
	LineMaxMVA  float64
}

// DefaultPowerFlowParams returns the spec's §4.3.5 defaults.
func DefaultPowerFlowParams() PowerFlowParams {
	return PowerFlowParams{BaseMVA: 100.0, LineMaxMVA: 150.0}
}

// PowerFlowSolver computes a linear DC power-flow approximation over a
// static topology: θ = B⁻¹·P, where B is the network susceptance
// matrix and P is the vector of per-bus net injections (generation
// minus load). Bus 0 (in name-sorted order) is the reference/slack bus
// with angle fixed at zero. The admittance matrix is rebuilt only when
// the topology changes (AddBus/AddLine), never on every
// tick, per spec §4.3.5.
type PowerFlowSolver struct {
	params PowerFlowParams
	buses  map[string]*Bus
	lines  []*Line

	busOrder []string
	bMatrix  [][]float64
	topologyDirty bool
}

// NewPowerFlowSolver creates an empty solver; topology is populated via
// AddBus/AddLine at boot from the scenario configuration.
func NewPowerFlowSolver(params PowerFlowParams) *PowerFlowSolver {
	return &PowerFlowSolver{
		params: params,
		buses:  make(map[string]*Bus),
	}
}

// AddBus registers a bus. device, if non-empty, is the PLC/RTU whose
// telemetry feeds this bus's generation (turbine) or load.
func (p *PowerFlowSolver) AddBus(name, device string) {
	p.buses[name] = &Bus{Name: name, Device: device, VoltagePU: 1.0}
	p.topologyDirty = true
}

// AddLine registers a transmission line between two existing buses.
func (p *PowerFlowSolver) AddLine(from, to string, susceptance, ratingMW float64) {
	p.lines = append(p.lines, &Line{From: from, To: to, Susceptance: susceptance, RatingMW: ratingMW})
	p.topologyDirty = true
}

// AggregateFromDevices reads turbine power_mw telemetry into the
// generation of each bus that was added with a device; the bus name
// plays no part (spec §4.3.5, grounded on the original's
// update_from_devices()).
func (p *PowerFlowSolver) AggregateFromDevices(f *fabric.Fabric) {
	key, _ := model.ParseKey("input_registers[5]")
	const powerFactor = 0.9
	for _, bus := range p.buses {
		if bus.Device == "" {
			continue
		}
		if v, ok, _ := f.Read(bus.Device, key); ok {
			bus.GenMW = float64(v.(uint16)) * powerFactor
		}
	}
}

// Solve rebuilds B if the topology changed, then solves θ = B⁻¹·P and
// recomputes every line's flow and overload status.
func (p *PowerFlowSolver) Solve() error {
	if p.topologyDirty {
		if err := p.rebuildB(); err != nil {
			return err
		}
		p.topologyDirty = false
	}

	n := len(p.busOrder)
	if n == 0 {
		return nil
	}

	// P vector in per-unit on BaseMVA, slack bus (index 0) excluded from
	// the solve.
	pInjection := make([]float64, n)
	for i, name := range p.busOrder {
		b := p.buses[name]
		pInjection[i] = (b.GenMW - b.LoadMW) / p.params.BaseMVA
	}

	theta := make([]float64, n)
	if n > 1 {
		reducedB := make([][]float64, n-1)
		reducedP := make([]float64, n-1)
		for i := 1; i < n; i++ {
			row := make([]float64, n-1)
			for j := 1; j < n; j++ {
				row[j-1] = p.bMatrix[i][j]
			}
			reducedB[i-1] = row
			reducedP[i-1] = pInjection[i]
		}
		solved, err := gaussianSolve(reducedB, reducedP)
		if err != nil {
			return fmt.Errorf("power flow solve: %w", err)
		}
		for i := 1; i < n; i++ {
			theta[i] = solved[i-1]
		}
	}

	for i, name := range p.busOrder {
		p.buses[name].AngleRad = theta[i]
	}

	for _, line := range p.lines {
		from := p.buses[line.From]
		to := p.buses[line.To]
		line.FlowMW = line.Susceptance * (from.AngleRad - to.AngleRad) * p.params.BaseMVA
		line.Overload = math.Abs(line.FlowMW) > line.RatingMW
	}

	return nil
}

// rebuildB constructs the bus susceptance matrix from the current line
// set. busOrder is sorted by name so bus 0 (the slack reference) is
// deterministic across runs.
func (p *PowerFlowSolver) rebuildB() error {
	names := make([]string, 0, len(p.buses))
	for name := range p.buses {
		names = append(names, name)
	}
	sort.Strings(names)
	p.busOrder = names

	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}

	n := len(names)
	b := make([][]float64, n)
	for i := range b {
		b[i] = make([]float64, n)
	}

	for _, line := range p.lines {
		fi, ok := index[line.From]
		if !ok {
			return fmt.Errorf("power flow: line references unknown bus %q", line.From)
		}
		ti, ok := index[line.To]
		if !ok {
			return fmt.Errorf("power flow: line references unknown bus %q", line.To)
		}
		b[fi][fi] += line.Susceptance
		b[ti][ti] += line.Susceptance
		b[fi][ti] -= line.Susceptance
		b[ti][fi] -= line.Susceptance
	}

	p.bMatrix = b
	return nil
}

// gaussianSolve solves A·x = bVec for x via Gaussian elimination with
// partial pivoting. A is square; the network's B-matrix is small
// (bounded by the configured topology) so a dense solve is adequate —
// this simulator has no larger linear-algebra need that would justify
// pulling in a numerical library.
func gaussianSolve(a [][]float64, bVec []float64) ([]float64, error) {
	n := len(a)
	aug := make([][]float64, n)
	for i := range a {
		row := make([]float64, n+1)
		copy(row, a[i])
		row[n] = bVec[i]
		aug[i] = row
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		if math.Abs(aug[col][col]) < 1e-12 {
			return nil, fmt.Errorf("singular susceptance matrix at bus index %d", col)
		}

		for r := col + 1; r < n; r++ {
			factor := aug[r][col] / aug[col][col]
			for c := col; c <= n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := aug[i][n]
		for j := i + 1; j < n; j++ {
			sum -= aug[i][j] * x[j]
		}
		x[i] = sum / aug[i][i]
	}
	return x, nil
}

// Lines returns the current line states, sorted by From then To for
// deterministic iteration.
func (p *PowerFlowSolver) Lines() []*Line {
	out := make([]*Line, len(p.lines))
	copy(out, p.lines)
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Bus returns a bus by name.
func (p *PowerFlowSolver) Bus(name string) (*Bus, bool) {
	b, ok := p.buses[name]
	return b, ok
}
