package physics

import (
	"testing"

	"github.com/icsim/simcore/internal/clock"
	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

func TestPowerFlowTwoBusLine(t *testing.T) {
	p := NewPowerFlowSolver(DefaultPowerFlowParams())
	p.AddBus("bus_gen", "")
	p.AddBus("bus_load", "")
	p.AddLine("bus_gen", "bus_load", 10.0, 150.0)

	p.buses["bus_gen"].GenMW = 50
	p.buses["bus_load"].LoadMW = 50

	if err := p.Solve(); err != nil {
		t.Fatal(err)
	}

	lines := p.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].FlowMW <= 0 {
		t.Fatalf("expected positive flow from gen to load bus, got %v", lines[0].FlowMW)
	}
	if lines[0].Overload {
		t.Fatal("50MW over a 150MW line should not be overloaded")
	}
}

func TestPowerFlowOverloadDetection(t *testing.T) {
	p := NewPowerFlowSolver(DefaultPowerFlowParams())
	p.AddBus("bus_gen", "")
	p.AddBus("bus_load", "")
	p.AddLine("bus_gen", "bus_load", 0.5, 10.0) // weak line, low rating

	p.buses["bus_gen"].GenMW = 200
	p.buses["bus_load"].LoadMW = 200

	if err := p.Solve(); err != nil {
		t.Fatal(err)
	}

	lines := p.Lines()
	if !lines[0].Overload {
		t.Fatalf("expected line overload with 200MW injection over a 10MW-rated weak line, flow=%v", lines[0].FlowMW)
	}
}

func TestPowerFlowAggregatesFromTurbineDevices(t *testing.T) {
	c, err := clock.New(clock.Stepped, 1)
	if err != nil {
		t.Fatal(err)
	}
	f := fabric.New(c)
	if _, err := f.Register("turbine_plc_1", model.KindPLC, 1, []string{"modbus", "turbine"}, nil); err != nil {
		t.Fatal(err)
	}
	irKey, _ := model.ParseKey("input_registers[5]")
	f.Write("turbine_plc_1", irKey, uint16(100))

	p := NewPowerFlowSolver(DefaultPowerFlowParams())
	p.AddBus("bus_turbine_plc_1", "turbine_plc_1")
	p.AggregateFromDevices(f)

	bus, ok := p.Bus("bus_turbine_plc_1")
	if !ok {
		t.Fatal("expected bus to exist")
	}
	if bus.GenMW != 90 { // 100MW * power factor 0.9
		t.Fatalf("GenMW = %v, want 90", bus.GenMW)
	}
}

func TestPowerFlowRebuildsOnlyOnTopologyChange(t *testing.T) {
	p := NewPowerFlowSolver(DefaultPowerFlowParams())
	p.AddBus("a", "")
	p.AddBus("b", "")
	p.AddLine("a", "b", 5.0, 100.0)

	if err := p.Solve(); err != nil {
		t.Fatal(err)
	}
	if p.topologyDirty {
		t.Fatal("expected topologyDirty to clear after Solve")
	}

	p.buses["a"].GenMW = 10
	if err := p.Solve(); err != nil {
		t.Fatal(err)
	}
	if p.topologyDirty {
		t.Fatal("topologyDirty should remain false when only injections changed")
	}
}
