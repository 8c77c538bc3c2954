package config

import (
	"fmt"
	"net/netip"
	"os"
	"regexp"
)

// canonicalKeyPattern matches the State Fabric's canonical
// "<space>[<index>]" key form. Config deliberately checks only the
// string shape here rather than depending on pkg/model to parse it —
// the orchestrator re-parses with model.ParseKey at wiring time, which
// is also where an out-of-range index would be caught.
var canonicalKeyPattern = regexp.MustCompile(`^(coils|discrete_inputs|holding_registers|input_registers)\[\d+\]$`)

// LoadConfig loads and parses a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadScenario loads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	scenario, err := ParseScenarioYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}
	return scenario, nil
}

// validateConfig performs validation on the configuration.
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if cfg.LogLevel != "" && !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if err := validateSimulation(cfg.Simulation); err != nil {
		return fmt.Errorf("simulation validation failed: %w", err)
	}

	deviceNames, err := validateDevices(cfg.Devices)
	if err != nil {
		return fmt.Errorf("devices validation failed: %w", err)
	}

	networkNames, err := validateNetworks(cfg.Networks)
	if err != nil {
		return fmt.Errorf("networks validation failed: %w", err)
	}

	if err := validateMemberships(cfg.Memberships, deviceNames, networkNames); err != nil {
		return fmt.Errorf("memberships validation failed: %w", err)
	}

	if err := validateAllowRules(cfg.AllowRules, deviceNames, networkNames); err != nil {
		return fmt.Errorf("allow_rules validation failed: %w", err)
	}

	return nil
}

func validateSimulation(s Simulation) error {
	validModes := map[string]bool{
		"real_time":   true,
		"accelerated": true,
		"stepped":     true,
		"paused":      true,
	}
	if s.ClockMode == "" {
		return fmt.Errorf("clock_mode cannot be empty")
	}
	if !validModes[s.ClockMode] {
		return fmt.Errorf("invalid clock_mode: %s (must be real_time, accelerated, stepped, or paused)", s.ClockMode)
	}
	if s.Speed < 0 {
		return fmt.Errorf("speed cannot be negative")
	}
	if s.UpdateInterval < 0 {
		return fmt.Errorf("update_interval_s cannot be negative")
	}
	return nil
}

func validateDevices(devices []Device) (map[string]bool, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("at least one device must be defined")
	}

	validKinds := map[string]bool{
		"PLC": true, "RTU": true, "HMI": true, "SCADA": true,
		"Historian": true, "IED": true, "SIS": true,
	}

	names := make(map[string]bool, len(devices))
	for _, d := range devices {
		if d.Name == "" {
			return nil, fmt.Errorf("device name cannot be empty")
		}
		if names[d.Name] {
			return nil, fmt.Errorf("duplicate device name: %s", d.Name)
		}
		names[d.Name] = true

		if !validKinds[d.Kind] {
			return nil, fmt.Errorf("device %s: invalid kind %s", d.Name, d.Kind)
		}

		seenPorts := make(map[int]bool)
		for _, p := range d.Protocols {
			if p.Protocol == "" {
				return nil, fmt.Errorf("device %s: protocol name cannot be empty", d.Name)
			}
			if p.Port <= 0 || p.Port > 65535 {
				return nil, fmt.Errorf("device %s, protocol %s: invalid port %d", d.Name, p.Protocol, p.Port)
			}
			if seenPorts[p.Port] {
				return nil, fmt.Errorf("device %s: duplicate port %d across protocol bindings", d.Name, p.Port)
			}
			seenPorts[p.Port] = true
		}

		if d.ScanIntervalS < 0 {
			return nil, fmt.Errorf("device %s: scan_interval_s cannot be negative", d.Name)
		}
	}

	for _, d := range devices {
		if d.Supervises == "" {
			continue
		}
		if !names[d.Supervises] {
			return nil, fmt.Errorf("device %s: supervises references unknown device %s", d.Name, d.Supervises)
		}
		if d.Kind != "HMI" {
			return nil, fmt.Errorf("device %s: supervises is only valid on HMI devices", d.Name)
		}
	}

	return names, nil
}

func validateNetworks(networks []Network) (map[string]bool, error) {
	names := make(map[string]bool, len(networks))
	for _, n := range networks {
		if n.Name == "" {
			return nil, fmt.Errorf("network name cannot be empty")
		}
		if names[n.Name] {
			return nil, fmt.Errorf("duplicate network name: %s", n.Name)
		}
		names[n.Name] = true

		if n.CIDR != "" {
			if _, err := netip.ParsePrefix(n.CIDR); err != nil {
				return nil, fmt.Errorf("network %s: invalid cidr %s: %w", n.Name, n.CIDR, err)
			}
		}
		if n.VLAN < 0 {
			return nil, fmt.Errorf("network %s: vlan cannot be negative", n.Name)
		}
	}
	return names, nil
}

func validateMemberships(memberships map[string][]string, deviceNames, networkNames map[string]bool) error {
	for netName, devices := range memberships {
		if !networkNames[netName] {
			return fmt.Errorf("membership references unknown network: %s", netName)
		}
		for _, d := range devices {
			if !deviceNames[d] {
				return fmt.Errorf("network %s: membership references unknown device %s", netName, d)
			}
		}
	}
	return nil
}

func validateAllowRules(rules []AllowRule, deviceNames, networkNames map[string]bool) error {
	for i, r := range rules {
		if !networkNames[r.SrcNetwork] {
			return fmt.Errorf("allow_rule %d: references unknown src_network %s", i, r.SrcNetwork)
		}
		if !deviceNames[r.DstDevice] {
			return fmt.Errorf("allow_rule %d: references unknown dst_device %s", i, r.DstDevice)
		}
		if r.Protocol == "" {
			return fmt.Errorf("allow_rule %d: protocol cannot be empty", i)
		}
		if r.Port <= 0 || r.Port > 65535 {
			return fmt.Errorf("allow_rule %d: invalid port %d", i, r.Port)
		}
	}
	return nil
}

// validateScenario performs validation on a physics scenario overlay.
func validateScenario(s *Scenario) error {
	seen := make(map[string]bool)
	for _, t := range s.Turbines {
		if t.Device == "" {
			return fmt.Errorf("turbine scenario entry missing device name")
		}
		if seen[t.Device] {
			return fmt.Errorf("duplicate turbine scenario for device %s", t.Device)
		}
		seen[t.Device] = true
	}
	for _, r := range s.Reactors {
		if r.Device == "" {
			return fmt.Errorf("reactor scenario entry missing device name")
		}
		if seen[r.Device] {
			return fmt.Errorf("duplicate scenario for device %s", r.Device)
		}
		seen[r.Device] = true
	}
	for _, h := range s.HVACUnits {
		if h.Device == "" {
			return fmt.Errorf("hvac scenario entry missing device name")
		}
		if seen[h.Device] {
			return fmt.Errorf("duplicate scenario for device %s", h.Device)
		}
		seen[h.Device] = true
	}
	for _, g := range s.Grids {
		if g.Device == "" {
			return fmt.Errorf("grid scenario entry missing device name")
		}
		if seen[g.Device] {
			return fmt.Errorf("duplicate scenario for device %s", g.Device)
		}
		seen[g.Device] = true
	}

	if s.PowerFlow != nil {
		if err := validatePowerFlow(s.PowerFlow); err != nil {
			return fmt.Errorf("power_flow validation failed: %w", err)
		}
	}

	if err := validateSCADAUnits(s.SCADAUnits); err != nil {
		return fmt.Errorf("scada_units validation failed: %w", err)
	}
	if err := validateHistorians(s.Historians); err != nil {
		return fmt.Errorf("historians validation failed: %w", err)
	}
	if err := validateSafetyPLCs(s.SafetyPLCs); err != nil {
		return fmt.Errorf("safety_plcs validation failed: %w", err)
	}

	return nil
}

func validateSCADAUnits(units []SCADAScenario) error {
	seen := make(map[string]bool, len(units))
	for _, u := range units {
		if u.Device == "" {
			return fmt.Errorf("scada scenario entry missing device name")
		}
		if seen[u.Device] {
			return fmt.Errorf("duplicate scada scenario for device %s", u.Device)
		}
		seen[u.Device] = true

		tagNames := make(map[string]bool, len(u.Tags))
		for _, t := range u.Tags {
			if t.Tag == "" || t.PeerDevice == "" {
				return fmt.Errorf("scada %s: tag and peer_device are required", u.Device)
			}
			if tagNames[t.Tag] {
				return fmt.Errorf("scada %s: duplicate tag %s", u.Device, t.Tag)
			}
			tagNames[t.Tag] = true
			if !canonicalKeyPattern.MatchString(t.Key) {
				return fmt.Errorf("scada %s: tag %s: invalid key %q", u.Device, t.Tag, t.Key)
			}
		}
	}
	return nil
}

func validateHistorians(historians []HistorianScenario) error {
	seen := make(map[string]bool, len(historians))
	for _, h := range historians {
		if h.Device == "" {
			return fmt.Errorf("historian scenario entry missing device name")
		}
		if seen[h.Device] {
			return fmt.Errorf("duplicate historian scenario for device %s", h.Device)
		}
		seen[h.Device] = true
		if h.Capacity < 0 {
			return fmt.Errorf("historian %s: capacity cannot be negative", h.Device)
		}

		tagNames := make(map[string]bool, len(h.Tags))
		for _, t := range h.Tags {
			if t.Tag == "" || t.PeerDevice == "" {
				return fmt.Errorf("historian %s: tag and peer_device are required", h.Device)
			}
			if tagNames[t.Tag] {
				return fmt.Errorf("historian %s: duplicate tag %s", h.Device, t.Tag)
			}
			tagNames[t.Tag] = true
			if !canonicalKeyPattern.MatchString(t.Key) {
				return fmt.Errorf("historian %s: tag %s: invalid key %q", h.Device, t.Tag, t.Key)
			}
		}
	}
	return nil
}

func validateSafetyPLCs(plcs []SafetyScenario) error {
	validEvents := map[string]bool{
		"DeviceFaulted": true, "GridTrip": true, "OverspeedTrip": true,
		"ReactorScram": true, "ContainmentBreach": true,
	}
	seen := make(map[string]bool, len(plcs))
	for _, p := range plcs {
		if p.Device == "" || p.WatchDevice == "" {
			return fmt.Errorf("safety plc scenario entry missing device or watch_device")
		}
		if seen[p.Device] {
			return fmt.Errorf("duplicate safety plc scenario for device %s", p.Device)
		}
		seen[p.Device] = true
		if !canonicalKeyPattern.MatchString(p.WatchKey) {
			return fmt.Errorf("safety plc %s: invalid watch_key %q", p.Device, p.WatchKey)
		}
		if !validEvents[p.EventType] {
			return fmt.Errorf("safety plc %s: invalid event_type %q", p.Device, p.EventType)
		}
		if len(p.Targets) == 0 {
			return fmt.Errorf("safety plc %s: at least one trip target is required", p.Device)
		}
		for i, t := range p.Targets {
			if t.Device == "" {
				return fmt.Errorf("safety plc %s: target %d missing device", p.Device, i)
			}
			if !canonicalKeyPattern.MatchString(t.Key) {
				return fmt.Errorf("safety plc %s: target %d: invalid key %q", p.Device, i, t.Key)
			}
		}
		if p.CooldownS < 0 {
			return fmt.Errorf("safety plc %s: cooldown_s cannot be negative", p.Device)
		}
	}
	return nil
}

func validatePowerFlow(pf *PowerFlowScenario) error {
	busNames := make(map[string]bool, len(pf.Buses))
	for _, b := range pf.Buses {
		if b.Name == "" {
			return fmt.Errorf("bus name cannot be empty")
		}
		if busNames[b.Name] {
			return fmt.Errorf("duplicate bus name: %s", b.Name)
		}
		busNames[b.Name] = true
	}
	for i, l := range pf.Lines {
		if l.From == "" || l.To == "" {
			return fmt.Errorf("line %d: from/to cannot be empty", i)
		}
		if len(busNames) > 0 {
			if !busNames[l.From] {
				return fmt.Errorf("line %d: unknown bus %s", i, l.From)
			}
			if !busNames[l.To] {
				return fmt.Errorf("line %d: unknown bus %s", i, l.To)
			}
		}
		if l.Susceptance <= 0 {
			return fmt.Errorf("line %d: susceptance must be positive", i)
		}
	}
	return nil
}
