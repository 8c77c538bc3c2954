package orchestrator

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/icsim/simcore/pkg/config"
	"github.com/icsim/simcore/pkg/model"
)

// sendModbusFrame writes one MBAP-framed PDU and returns the response PDU
// body, mirroring internal/protocol's own test helper since that package
// can't be imported here without an import cycle.
func sendModbusFrame(t *testing.T, conn net.Conn, unitID byte, pdu []byte) []byte {
	t.Helper()
	frame := make([]byte, 7+len(pdu))
	binary.BigEndian.PutUint16(frame[0:2], 1)
	binary.BigEndian.PutUint16(frame[4:6], uint16(1+len(pdu)))
	frame[6] = unitID
	copy(frame[7:], pdu)
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	header := make([]byte, 7)
	if _, err := readFullConn(conn, header); err != nil {
		t.Fatalf("read response header: %v", err)
	}
	length := binary.BigEndian.Uint16(header[4:6])
	body := make([]byte, length-1)
	if len(body) > 0 {
		if _, err := readFullConn(conn, body); err != nil {
			t.Fatalf("read response body: %v", err)
		}
	}
	return body
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// s1Config mirrors spec §8 scenario S1: a single turbine PLC exposing
// Modbus on plant_network, with the loopback address itself admitted as
// a plant_network member so the test's own dial traffic is recognized
// as in-network rather than falling back to the corporate default. The
// listener binds 127.0.0.1 so that dial arrives from IPv4 loopback
// rather than ::1.
func s1Config(port int) *config.Config {
	return &config.Config{
		Simulation: config.Simulation{ClockMode: "accelerated", Speed: 1000, UpdateInterval: 0.1},
		Devices: []config.Device{
			{Name: "turbine_plc_1", Kind: "PLC", ID: 1, Protocols: []config.ProtocolBinding{
				{Protocol: "modbus", Host: "127.0.0.1", Port: port, Options: map[string]any{"unit_id": 1}},
			}},
		},
		Networks:    []config.Network{{Name: "plant_network", CIDR: "127.0.0.1/32"}},
		Memberships: map[string][]string{"plant_network": {"turbine_plc_1"}},
	}
}

func s1Scenario() *config.Scenario {
	return &config.Scenario{Turbines: []config.TurbineScenario{{Device: "turbine_plc_1", RatedPowerMW: 100}}}
}

// TestScenarioS1BootAndModbusRead mirrors spec §8 S1: after boot, a
// client dialing in from an admitted network can read input registers
// over Modbus FC04 and gets a well-formed, in-range response.
func TestScenarioS1BootAndModbusRead(t *testing.T) {
	cfg := s1Config(0)
	o, err := New(cfg, s1Scenario(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Stop()

	addr := o.Listeners()[0].Addr()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	// FC04 read input registers, addr 0, count 1.
	body := sendModbusFrame(t, conn, 1, []byte{0x04, 0x00, 0x00, 0x00, 0x01})
	if len(body) != 4 {
		t.Fatalf("expected 4-byte response (fc+count+2 data bytes), got %d: %x", len(body), body)
	}
	if body[0] != 0x04 || body[1] != 2 {
		t.Fatalf("unexpected response header: %x", body)
	}
	speed := binary.BigEndian.Uint16(body[2:4])
	if speed > 4000 {
		t.Fatalf("shaft speed %d out of plausible idle range", speed)
	}
}

// TestScenarioS1DeniesCorporateNetwork mirrors the denial half of S1:
// a peer that the gate cannot place in any admitted network is refused
// a session for the same device/protocol/port.
func TestScenarioS1DeniesCorporateNetwork(t *testing.T) {
	cfg := s1Config(0)
	// Narrow plant_network to a CIDR that excludes the loopback address
	// the test's own dial will originate from, so the gate falls back
	// to treating the connection as corporate-origin.
	cfg.Networks = []config.Network{{Name: "plant_network", CIDR: "10.0.1.0/24"}}

	o, err := New(cfg, s1Scenario(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Stop()

	addr := o.Listeners()[0].Addr()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	// A denied peer gets its connection closed without a Modbus reply.
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(buf)
	if err == nil {
		t.Fatal("expected denied connection to be closed, got data")
	}
}

// s2Config mirrors spec §8 S2: a turbine PLC wired to a safety PLC that
// asserts coils[11] (emergency_trip) when discrete_inputs[1]
// (overspeed) is observed.
func s2Config() (*config.Config, *config.Scenario) {
	cfg := &config.Config{
		Simulation: config.Simulation{ClockMode: "stepped", Speed: 1, UpdateInterval: 0.1},
		Devices: []config.Device{
			{Name: "turbine_plc_1", Kind: "PLC", ID: 1},
			{Name: "safety_1", Kind: "SIS", ID: 2},
		},
	}
	scenario := &config.Scenario{
		Turbines: []config.TurbineScenario{{Device: "turbine_plc_1", RatedPowerMW: 100}},
		SafetyPLCs: []config.SafetyScenario{{
			Device: "safety_1", WatchDevice: "turbine_plc_1", WatchKey: "discrete_inputs[1]",
			EventType: "OverspeedTrip", CooldownS: 1,
			Targets: []config.TripTargetSpec{{Device: "turbine_plc_1", Key: "coils[11]"}},
		}},
	}
	return cfg, scenario
}

// TestScenarioS2OverspeedTripsSafetyPLC mirrors spec §8 S2: setting the
// speed setpoint above the overspeed threshold with the governor
// enabled and no trip must, within 40s of sim time, have the safety PLC
// assert emergency_trip on the turbine; by 60s the turbine must have
// decelerated to a stop.
func TestScenarioS2OverspeedTripsSafetyPLC(t *testing.T) {
	cfg, scenario := s2Config()
	o, err := New(cfg, scenario, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	setpointKey, _ := model.ParseKey("holding_registers[0]")
	governorKey, _ := model.ParseKey("coils[10]")
	partial := model.NewMemoryMap()
	partial.HoldingRegisters[setpointKey.Index] = 4500
	partial.Coils[governorKey.Index] = true
	if err := o.Fabric().WriteBulk("turbine_plc_1", partial); err != nil {
		t.Fatalf("seed setpoint: %v", err)
	}

	tripKey, _ := model.ParseKey("coils[11]")
	tripAtS := -1.0
	for i := 0; i < 600; i++ { // 60s of sim time at dt=0.1
		if err := o.Step(0.1); err != nil {
			t.Fatalf("Step: %v", err)
		}
		v, ok, err := o.Fabric().Read("turbine_plc_1", tripKey)
		if err != nil {
			t.Fatalf("read trip coil: %v", err)
		}
		if ok && v.(bool) && tripAtS < 0 {
			tripAtS = o.Clock().Now()
		}
	}

	if tripAtS < 0 {
		t.Fatal("safety PLC never asserted emergency_trip")
	}
	if tripAtS > 40.0 {
		t.Fatalf("emergency_trip asserted too late: %.1fs", tripAtS)
	}

	speedKey, _ := model.ParseKey("input_registers[0]")
	v, ok, err := o.Fabric().Read("turbine_plc_1", speedKey)
	if err != nil || !ok {
		t.Fatalf("read shaft speed: ok=%v err=%v", ok, err)
	}
	if v.(uint16) != 0 {
		t.Fatalf("expected turbine stopped by 60s, shaft speed = %d", v.(uint16))
	}
}

// s3Config mirrors spec §8 S3: three turbines feeding one grid
// integrator under load, testing frequency response to a generation
// trip rather than a load change. AccelRPMPerS is raised well past the
// physics default so each turbine reaches rated speed (and its full
// rated_power_mw contribution to the grid's TotalGenMW) within a short,
// test-friendly warmup window.
func s3Config() (*config.Config, *config.Scenario) {
	cfg := &config.Config{
		Simulation: config.Simulation{ClockMode: "stepped", Speed: 1, UpdateInterval: 0.1},
		Devices: []config.Device{
			{Name: "turbine_1", Kind: "PLC", ID: 1},
			{Name: "turbine_2", Kind: "PLC", ID: 2},
			{Name: "turbine_3", Kind: "PLC", ID: 3},
		},
	}
	scenario := &config.Scenario{
		Turbines: []config.TurbineScenario{
			{Device: "turbine_1", RatedPowerMW: 33, AccelRPMPerS: 360},
			{Device: "turbine_2", RatedPowerMW: 33, AccelRPMPerS: 360},
			{Device: "turbine_3", RatedPowerMW: 33, AccelRPMPerS: 360},
		},
		Grids: []config.GridScenario{{
			LoadMW: 100, NominalFrequencyHz: 50.0, InertiaConstant: 5000, MinFrequencyHz: 49.0,
		}},
	}
	return cfg, scenario
}

// TestScenarioS3GridLoadLossFrequencyResponse mirrors spec §8 S3: three
// turbines commanded to rated speed bring the grid close to nominal
// frequency under the configured load; tripping one of them removes
// its generation and the resulting gen/load imbalance must sag
// frequency into the 48.5-49.9 Hz band within 100s of sim time.
func TestScenarioS3GridLoadLossFrequencyResponse(t *testing.T) {
	cfg, scenario := s3Config()
	o, err := New(cfg, scenario, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	setpointKey, _ := model.ParseKey("holding_registers[0]")
	governorKey, _ := model.ParseKey("coils[10]")
	for _, name := range []string{"turbine_1", "turbine_2", "turbine_3"} {
		partial := model.NewMemoryMap()
		partial.HoldingRegisters[setpointKey.Index] = 3600
		partial.Coils[governorKey.Index] = true
		if err := o.Fabric().WriteBulk(name, partial); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	for i := 0; i < 150; i++ { // 15s: each turbine reaches rated speed (3600/360 = 10s)
		if err := o.Step(0.1); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	genMW := o.Grid().State().TotalGenMW
	if genMW < 90 {
		t.Fatalf("expected turbines to have ramped to near-rated generation (~99MW), got %.1f", genMW)
	}
	preTripFreq := o.Grid().State().FrequencyHz
	if preTripFreq <= 49.5 {
		t.Fatalf("expected frequency near nominal before the trip, got %.3f", preTripFreq)
	}

	tripKey, _ := model.ParseKey("coils[11]")
	partial := model.NewMemoryMap()
	partial.Coils[tripKey.Index] = true
	if err := o.Fabric().WriteBulk("turbine_1", partial); err != nil {
		t.Fatalf("trip turbine_1: %v", err)
	}

	for i := 0; i < 1000; i++ { // 100s of sim time
		if err := o.Step(0.1); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	freq := o.Grid().State().FrequencyHz
	if freq >= preTripFreq {
		t.Fatalf("expected frequency to sag below its pre-trip value %.3f, got %.3f", preTripFreq, freq)
	}
	if freq >= 49.9 || freq <= 48.5 {
		t.Fatalf("expected frequency to sag into (48.5, 49.9), got %.3f", freq)
	}
}
