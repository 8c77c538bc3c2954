package physics

import (
	"testing"

	"github.com/icsim/simcore/internal/clock"
	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

func newTurbineFabric(t *testing.T) (*fabric.Fabric, string) {
	t.Helper()
	c, err := clock.New(clock.Stepped, 1)
	if err != nil {
		t.Fatal(err)
	}
	f := fabric.New(c)
	name := "turbine_plc_1"
	if _, err := f.Register(name, model.KindPLC, 1, []string{"modbus"}, nil); err != nil {
		t.Fatal(err)
	}
	return f, name
}

func TestTurbineIdleHasNoDamage(t *testing.T) {
	f, name := newTurbineFabric(t)
	ti := NewTurbineIntegrator(name, DefaultTurbineParams())

	for i := 0; i < 100; i++ {
		ti.ReadControls(f)
		ti.Update(0.1)
		ti.WriteTelemetry(f)
	}

	if ti.State().DamagePct != 0 {
		t.Fatalf("idle turbine accumulated damage: %v", ti.State().DamagePct)
	}
	if ti.State().ShaftSpeedRPM != 0 {
		t.Fatalf("idle turbine shaft speed moved: %v", ti.State().ShaftSpeedRPM)
	}
}

func TestTurbineMirrorsShaftSpeedToInputRegisters(t *testing.T) {
	f, name := newTurbineFabric(t)
	ti := NewTurbineIntegrator(name, DefaultTurbineParams())
	ti.state.ShaftSpeedRPM = 1800

	ti.ReadControls(f)
	ti.Update(0.1)
	ti.WriteTelemetry(f)

	key, _ := model.ParseKey("input_registers[0]")
	v, ok, err := f.Read(name, key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected input_registers[0] to be set")
	}
	if v.(uint16) != uint16(ti.State().ShaftSpeedRPM) {
		t.Fatalf("input_registers[0] = %v, want %v", v, uint16(ti.State().ShaftSpeedRPM))
	}
}

// TestOverspeedAccumulatesDamage exercises the turbine's overspeed
// damage model: a shaft held at 125% of rated speed (4500rpm, governed
// to stay there) for 10 simulated seconds must accrue substantial
// damage and raise the overspeed alarm, per the "1%/s at 120% rated"
// damage-rate rule.
func TestOverspeedAccumulatesDamage(t *testing.T) {
	f, name := newTurbineFabric(t)
	ti := NewTurbineIntegrator(name, DefaultTurbineParams())
	ti.state.ShaftSpeedRPM = 4500

	setpointKey, _ := model.ParseKey("holding_registers[0]")
	governorKey, _ := model.ParseKey("coils[10]")
	if err := f.Write(name, setpointKey, uint16(4500)); err != nil {
		t.Fatal(err)
	}
	if err := f.Write(name, governorKey, true); err != nil {
		t.Fatal(err)
	}

	const dt = 0.1
	for i := 0; i < 100; i++ {
		ti.ReadControls(f)
		ti.Update(dt)
		ti.WriteTelemetry(f)
	}

	if ti.State().DamagePct < 10.0 {
		t.Fatalf("damage_pct = %v after 10s at 125%% rated, want >= 10.0", ti.State().DamagePct)
	}

	alarmKey, _ := model.ParseKey("discrete_inputs[1]")
	alarm, ok, err := f.Read(name, alarmKey)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !alarm.(bool) {
		t.Fatal("expected overspeed alarm discrete input to be set")
	}
}

func TestEmergencyTripDecelerates(t *testing.T) {
	f, name := newTurbineFabric(t)
	ti := NewTurbineIntegrator(name, DefaultTurbineParams())
	ti.state.ShaftSpeedRPM = 3600

	tripKey, _ := model.ParseKey("coils[11]")
	if err := f.Write(name, tripKey, true); err != nil {
		t.Fatal(err)
	}

	ti.ReadControls(f)
	ti.Update(1.0)

	if ti.State().ShaftSpeedRPM >= 3600 {
		t.Fatalf("expected shaft speed to decrease on emergency trip, got %v", ti.State().ShaftSpeedRPM)
	}
}

func TestCatastrophicFailureStopsTurbine(t *testing.T) {
	f, name := newTurbineFabric(t)
	ti := NewTurbineIntegrator(name, DefaultTurbineParams())
	ti.state.ShaftSpeedRPM = 4500
	ti.state.DamagePct = 60

	ti.ReadControls(f)
	ti.Update(0.1)

	if ti.State().Running {
		t.Fatal("expected turbine with damage_pct > 50 to stop running")
	}
}
