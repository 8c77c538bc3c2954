// Package orchestrator wires the State Fabric, physics integrators, scan
// machines, the Network Gate and the protocol listeners into one running
// kernel, and drives the per-tick ordering spec §4.7 requires: physics,
// then due scans, then listener sync. It is grounded on the teacher's
// internal/engine.Engine event-loop shape, generalized from a single
// discrete-event queue to the fixed physics/scan/sync pipeline the ICS
// domain calls for.
package orchestrator

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/icsim/simcore/internal/clock"
	"github.com/icsim/simcore/internal/device"
	"github.com/icsim/simcore/internal/events"
	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/internal/netgate"
	"github.com/icsim/simcore/internal/physics"
	"github.com/icsim/simcore/internal/protocol"
	"github.com/icsim/simcore/pkg/config"
	"github.com/icsim/simcore/pkg/kerrors"
	"github.com/icsim/simcore/pkg/model"
)

// DefaultTickInterval is the per-tick dt used when the configuration
// omits simulation.update_interval_s.
const DefaultTickInterval = 0.1

// DefaultScanInterval is the per-device scan cadence used when a
// device's scan_interval_s is zero (spec §4.4: "typical 10-1000ms").
const DefaultScanInterval = 0.1

// Orchestrator owns every kernel component and drives the boot
// sequence and tick loop of spec §4.7.
type Orchestrator struct {
	log *slog.Logger

	clk    *clock.Clock
	fab    *fabric.Fabric
	gate   *netgate.Gate
	bus    *events.Bus
	scans  *events.ScanScheduler

	integrators []physics.Integrator
	grid        *physics.GridIntegrator
	powerFlow   *physics.PowerFlowSolver

	listeners []protocol.Server

	failureThreshold int
	tickInterval     float64

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New runs the boot sequence of spec §4.7 steps 1-7: start the clock,
// initialize the State Fabric, register every configured device,
// construct physics integrators and scan machines bound to them, load
// the network topology, and construct (but not yet start) every
// configured protocol listener.
func New(cfg *config.Config, scenario *config.Scenario, log *slog.Logger) (*Orchestrator, error) {
	if log == nil {
		log = slog.Default()
	}
	if scenario == nil {
		scenario = &config.Scenario{}
	}

	// Step 1: start the clock.
	mode, err := parseClockMode(cfg.Simulation.ClockMode)
	if err != nil {
		return nil, fmt.Errorf("boot: %w", err)
	}
	speed := cfg.Simulation.Speed
	if speed <= 0 {
		speed = 1.0
	}
	clk, err := clock.New(mode, speed)
	if err != nil {
		return nil, fmt.Errorf("boot: start clock: %w", err)
	}

	// Step 2: initialize the State Fabric.
	fab := fabric.New(clk)

	// Step 3: register devices from the config catalogue.
	devicesByName := make(map[string]config.Device, len(cfg.Devices))
	knownDevices := make(map[string]struct{}, len(cfg.Devices))
	for _, d := range cfg.Devices {
		protocols := make([]string, 0, len(d.Protocols))
		for _, p := range d.Protocols {
			protocols = append(protocols, p.Protocol)
		}
		if _, err := fab.Register(d.Name, model.DeviceKind(d.Kind), uint16(d.ID), protocols, nil); err != nil {
			return nil, fmt.Errorf("boot: register device %s: %w", d.Name, err)
		}
		devicesByName[d.Name] = d
		knownDevices[d.Name] = struct{}{}
	}

	// Step 4: construct physics integrators bound to devices.
	integratorsByName, err := buildIntegrators(scenario, clk)
	if err != nil {
		return nil, fmt.Errorf("boot: construct physics integrators: %w", err)
	}

	bus := events.NewBus(log)
	scans := events.NewScanScheduler()

	// Step 5: construct scan machines bound to devices/integrators.
	// SCADA scan machines are built first: HMI devices below need the
	// already-constructed *device.SCADADevice they supervise.
	scadaByName := make(map[string]*device.SCADADevice, len(scenario.SCADAUnits))
	for _, su := range scenario.SCADAUnits {
		tags, err := buildTagConfigs(su.Tags)
		if err != nil {
			return nil, fmt.Errorf("boot: scada %s: %w", su.Device, err)
		}
		sc := device.NewSCADADevice(su.Device, tags)
		scadaByName[su.Device] = sc
		scans.Add(sc, scanIntervalFor(devicesByName, su.Device), 0)
	}

	for name, integ := range integratorsByName {
		fd := device.NewFieldDevice(integ)
		scans.Add(fd, scanIntervalFor(devicesByName, name), 0)
	}

	for _, hs := range scenario.Historians {
		tags, err := buildHistorianTags(hs.Tags)
		if err != nil {
			return nil, fmt.Errorf("boot: historian %s: %w", hs.Device, err)
		}
		hd := device.NewHistorianDevice(hs.Device, tags, hs.Capacity)
		scans.Add(hd, scanIntervalFor(devicesByName, hs.Device), 0)
	}

	for _, sp := range scenario.SafetyPLCs {
		spd, err := buildSafetyPLC(sp)
		if err != nil {
			return nil, fmt.Errorf("boot: safety plc %s: %w", sp.Device, err)
		}
		scans.Add(spd, scanIntervalFor(devicesByName, sp.Device), 0)
	}

	for _, d := range cfg.Devices {
		if model.DeviceKind(d.Kind) != model.KindHMI || d.Supervises == "" {
			continue
		}
		sc, ok := scadaByName[d.Supervises]
		if !ok {
			return nil, fmt.Errorf("boot: hmi %s supervises unknown scada device %s", d.Name, d.Supervises)
		}
		hmi := device.NewHMIDevice(d.Name, sc)
		scans.Add(hmi, scanIntervalFor(devicesByName, d.Name), 0)
	}

	var grid *physics.GridIntegrator
	if len(scenario.Grids) > 0 {
		if len(scenario.Grids) > 1 {
			log.Warn("multiple grid scenarios configured, using the first", "count", len(scenario.Grids))
		}
		gs := scenario.Grids[0]
		grid = physics.NewGridIntegrator(overlayGridParams(gs), gs.LoadMW, clk)
		generators := make([]string, 0, len(scenario.Turbines))
		for _, ts := range scenario.Turbines {
			generators = append(generators, ts.Device)
		}
		grid.SetGenerators(generators)
	}

	var powerFlow *physics.PowerFlowSolver
	if scenario.PowerFlow != nil {
		powerFlow = buildPowerFlow(scenario.PowerFlow)
	}

	// Step 6: load the network topology into the Network Gate.
	gate := netgate.New()
	networks := make([]model.Network, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		networks = append(networks, model.Network{Name: n.Name, CIDR: n.CIDR, VLAN: n.VLAN})
	}
	if err := gate.Load(networks, cfg.Memberships, knownDevices); err != nil {
		return nil, fmt.Errorf("boot: load topology: %w", err)
	}
	for _, r := range cfg.AllowRules {
		gate.AllowCrossNetwork(model.AllowRule{SrcNetwork: r.SrcNetwork, DstDevice: r.DstDevice, Protocol: r.Protocol, Port: r.Port})
	}

	// Step 7: construct protocol listeners from the device catalogue,
	// registering (device, protocol, port) in the service registry.
	var listeners []protocol.Server
	for _, d := range cfg.Devices {
		for _, pb := range d.Protocols {
			srv, err := buildListener(d.Name, pb, gate, log)
			if err != nil {
				return nil, fmt.Errorf("boot: construct listener %s/%s: %w", d.Name, pb.Protocol, err)
			}
			gate.ExposeService(d.Name, pb.Protocol, pb.Port)
			listeners = append(listeners, srv)
		}
	}

	// Physics integrators run in stable device-name order (spec §5).
	orderedIntegrators := make([]physics.Integrator, 0, len(integratorsByName))
	for _, name := range fab.Names() {
		if integ, ok := integratorsByName[name]; ok {
			orderedIntegrators = append(orderedIntegrators, integ)
		}
	}

	interval := cfg.Simulation.UpdateInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	return &Orchestrator{
		log:              log,
		clk:              clk,
		fab:              fab,
		gate:             gate,
		bus:              bus,
		scans:            scans,
		integrators:      orderedIntegrators,
		grid:             grid,
		powerFlow:        powerFlow,
		listeners:        listeners,
		failureThreshold: device.DefaultFailureThreshold,
		tickInterval:     interval,
	}, nil
}

func parseClockMode(s string) (clock.Mode, error) {
	switch s {
	case "real_time":
		return clock.RealTime, nil
	case "accelerated":
		return clock.Accelerated, nil
	case "stepped":
		return clock.Stepped, nil
	case "paused":
		return clock.Paused, nil
	default:
		return 0, fmt.Errorf("clock_mode %q: %w", s, kerrors.ErrInvalidConfig)
	}
}

func scanIntervalFor(devices map[string]config.Device, name string) float64 {
	if d, ok := devices[name]; ok && d.ScanIntervalS > 0 {
		return d.ScanIntervalS
	}
	return DefaultScanInterval
}

func buildIntegrators(scenario *config.Scenario, clk *clock.Clock) (map[string]physics.Integrator, error) {
	out := make(map[string]physics.Integrator)
	for _, ts := range scenario.Turbines {
		if _, dup := out[ts.Device]; dup {
			return nil, fmt.Errorf("device %s: multiple physics scenarios configured", ts.Device)
		}
		out[ts.Device] = physics.NewTurbineIntegrator(ts.Device, overlayTurbineParams(ts))
	}
	for _, rs := range scenario.Reactors {
		if _, dup := out[rs.Device]; dup {
			return nil, fmt.Errorf("device %s: multiple physics scenarios configured", rs.Device)
		}
		out[rs.Device] = physics.NewReactorIntegrator(rs.Device, overlayReactorParams(rs))
	}
	for _, hs := range scenario.HVACUnits {
		if _, dup := out[hs.Device]; dup {
			return nil, fmt.Errorf("device %s: multiple physics scenarios configured", hs.Device)
		}
		out[hs.Device] = physics.NewHVACIntegrator(hs.Device, overlayHVACParams(hs))
	}
	return out, nil
}

func buildTagConfigs(specs []config.TagSpec) ([]device.TagConfig, error) {
	out := make([]device.TagConfig, 0, len(specs))
	for _, s := range specs {
		key, ok := model.ParseKey(s.Key)
		if !ok {
			return nil, fmt.Errorf("tag %s: invalid key %q: %w", s.Tag, s.Key, kerrors.ErrInvalidConfig)
		}
		out = append(out, device.TagConfig{
			Tag: s.Tag, PeerDevice: s.PeerDevice, Key: key,
			LowLimit: s.LowLimit, HighLimit: s.HighLimit, Hysteresis: s.Hysteresis,
		})
	}
	return out, nil
}

func buildHistorianTags(specs []config.HistorianTagSpec) ([]device.HistorianTag, error) {
	out := make([]device.HistorianTag, 0, len(specs))
	for _, s := range specs {
		key, ok := model.ParseKey(s.Key)
		if !ok {
			return nil, fmt.Errorf("tag %s: invalid key %q: %w", s.Tag, s.Key, kerrors.ErrInvalidConfig)
		}
		out = append(out, device.HistorianTag{Tag: s.Tag, PeerDevice: s.PeerDevice, Key: key})
	}
	return out, nil
}

func buildSafetyPLC(sp config.SafetyScenario) (*device.SafetyPLCDevice, error) {
	watchKey, ok := model.ParseKey(sp.WatchKey)
	if !ok {
		return nil, fmt.Errorf("invalid watch_key %q: %w", sp.WatchKey, kerrors.ErrInvalidConfig)
	}
	targets := make([]device.TripTarget, 0, len(sp.Targets))
	for _, t := range sp.Targets {
		key, ok := model.ParseKey(t.Key)
		if !ok {
			return nil, fmt.Errorf("trip target %s: invalid key %q: %w", t.Device, t.Key, kerrors.ErrInvalidConfig)
		}
		targets = append(targets, device.TripTarget{Device: t.Device, Key: key})
	}
	return device.NewSafetyPLCDevice(sp.Device, sp.WatchDevice, watchKey, targets,
		model.EventType(sp.EventType), sp.CooldownS, nil), nil
}

func buildPowerFlow(s *config.PowerFlowScenario) *physics.PowerFlowSolver {
	pf := physics.NewPowerFlowSolver(overlayPowerFlowParams(s))
	for _, b := range s.Buses {
		pf.AddBus(b.Name, b.Device)
	}
	for _, l := range s.Lines {
		pf.AddLine(l.From, l.To, l.Susceptance, l.RatingMW)
	}
	return pf
}

func buildListener(deviceName string, pb config.ProtocolBinding, gate *netgate.Gate, log *slog.Logger) (protocol.Server, error) {
	host := pb.Host
	if host == "" {
		host = "0.0.0.0"
	}
	addr := host + ":" + strconv.Itoa(pb.Port)
	sessionCap := intOption(pb.Options, "session_cap", protocol.DefaultSessionCap)
	admit := gate.Admit(deviceName, pb.Protocol, pb.Port)

	switch pb.Protocol {
	case "modbus":
		unitID := byte(intOption(pb.Options, "unit_id", 1))
		return protocol.NewModbusServer(deviceName, addr, unitID, protocol.DefaultModbusIdentity(), sessionCap, admit, log), nil
	case "s7":
		return protocol.NewS7Server(deviceName, addr, sessionCap, admit, log), nil
	case "dnp3":
		return protocol.NewDNP3Server(deviceName, addr, sessionCap, admit, log), nil
	case "iec104":
		return protocol.NewIEC104Server(deviceName, addr, sessionCap, admit, log), nil
	case "opcua":
		return protocol.NewOPCUAServer(deviceName, addr, sessionCap, admit, log), nil
	case "ethernet_ip":
		return protocol.NewEtherNetIPServer(deviceName, addr, sessionCap, admit, log), nil
	default:
		return nil, fmt.Errorf("protocol %q: %w", pb.Protocol, kerrors.ErrInvalidConfig)
	}
}

func intOption(opts map[string]any, key string, def int) int {
	v, ok := opts[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// Fabric returns the State Fabric this orchestrator drives. Exposed
// for tests and telemetry tooling that need read access to device
// state without reaching into orchestrator internals.
func (o *Orchestrator) Fabric() *fabric.Fabric { return o.fab }

// Clock returns the clock this orchestrator drives.
func (o *Orchestrator) Clock() *clock.Clock { return o.clk }

// Gate returns the Network Gate this orchestrator loaded at boot.
func (o *Orchestrator) Gate() *netgate.Gate { return o.gate }

// Bus returns the kernel event bus.
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

// Listeners returns every constructed protocol listener, sorted by
// device name then protocol for deterministic inspection in tests.
func (o *Orchestrator) Listeners() []protocol.Server {
	out := make([]protocol.Server, len(o.listeners))
	copy(out, o.listeners)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Device() != out[j].Device() {
			return out[i].Device() < out[j].Device()
		}
		return out[i].Protocol() < out[j].Protocol()
	})
	return out
}

// Grid returns the system-wide grid integrator, or nil if none is
// configured.
func (o *Orchestrator) Grid() *physics.GridIntegrator { return o.grid }

// PowerFlow returns the power-flow solver, or nil if none is configured.
func (o *Orchestrator) PowerFlow() *physics.PowerFlowSolver { return o.powerFlow }
