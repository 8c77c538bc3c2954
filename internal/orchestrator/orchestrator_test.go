package orchestrator

import (
	"testing"

	"github.com/icsim/simcore/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		LogLevel: "info",
		Simulation: config.Simulation{
			ClockMode:      "stepped",
			Speed:          1,
			UpdateInterval: 0.1,
		},
		Devices: []config.Device{
			{Name: "turbine_1", Kind: "PLC", ID: 1, Protocols: []config.ProtocolBinding{
				{Protocol: "modbus", Port: 15020, Options: map[string]any{"unit_id": 1}},
			}},
			{Name: "scada_1", Kind: "SCADA", ID: 2, Protocols: []config.ProtocolBinding{
				{Protocol: "dnp3", Port: 15021},
			}},
			{Name: "hmi_1", Kind: "HMI", ID: 3, Supervises: "scada_1"},
			{Name: "historian_1", Kind: "Historian", ID: 4},
			{Name: "safety_1", Kind: "SIS", ID: 5},
		},
		Networks: []config.Network{
			{Name: "ot_network", CIDR: "10.0.1.0/24"},
		},
		Memberships: map[string][]string{
			"ot_network": {"turbine_1", "scada_1", "hmi_1", "historian_1", "safety_1"},
		},
	}
}

func testScenario() *config.Scenario {
	return &config.Scenario{
		Turbines: []config.TurbineScenario{
			{Device: "turbine_1", RatedPowerMW: 100},
		},
		SCADAUnits: []config.SCADAScenario{
			{Device: "scada_1", Tags: []config.TagSpec{
				{Tag: "turbine_speed", PeerDevice: "turbine_1", Key: "input_registers[0]", HighLimit: 3960, Hysteresis: 20},
			}},
		},
		Historians: []config.HistorianScenario{
			{Device: "historian_1", Capacity: 100, Tags: []config.HistorianTagSpec{
				{Tag: "turbine_speed", PeerDevice: "turbine_1", Key: "input_registers[0]"},
			}},
		},
		SafetyPLCs: []config.SafetyScenario{
			{
				Device: "safety_1", WatchDevice: "turbine_1", WatchKey: "discrete_inputs[1]",
				EventType: "OverspeedTrip", CooldownS: 1,
				Targets: []config.TripTargetSpec{{Device: "turbine_1", Key: "coils[11]"}},
			},
		},
	}
}

func TestNewBootsEveryDeviceAndListener(t *testing.T) {
	o, err := New(testConfig(), testScenario(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, want := len(o.Fabric().All()), 5; got != want {
		t.Fatalf("expected %d registered devices, got %d", want, got)
	}
	if got, want := len(o.Listeners()), 2; got != want {
		t.Fatalf("expected 2 listeners, got %d", got)
	}
	if got, want := len(o.integrators), 1; got != want {
		t.Fatalf("expected 1 physics integrator, got %d", got)
	}
	if o.scans.Len() != 5 {
		t.Fatalf("expected 5 scheduled scan machines, got %d", o.scans.Len())
	}
}

func TestNewRejectsUnknownSupervisedSCADA(t *testing.T) {
	cfg := testConfig()
	cfg.Devices = append(cfg.Devices, config.Device{Name: "hmi_2", Kind: "HMI", ID: 6, Supervises: "ghost"})
	cfg.Memberships["ot_network"] = append(cfg.Memberships["ot_network"], "hmi_2")

	if _, err := New(cfg, testScenario(), nil); err == nil {
		t.Fatal("expected error for hmi supervising an unknown scada device")
	}
}

func TestNewRejectsBadClockMode(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.ClockMode = "warp_speed"
	if _, err := New(cfg, testScenario(), nil); err == nil {
		t.Fatal("expected error for invalid clock_mode")
	}
}

func TestNewRejectsUnsupportedProtocol(t *testing.T) {
	cfg := testConfig()
	cfg.Devices[0].Protocols[0].Protocol = "carrier_pigeon"
	if _, err := New(cfg, testScenario(), nil); err == nil {
		t.Fatal("expected error for unsupported protocol")
	}
}
