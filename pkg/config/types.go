package config

// Config is the top-level declarative catalogue (spec §6): simulation
// timing, the device roster, the network topology and the membership
// map the Network Gate loads at boot step 6.
type Config struct {
	LogLevel    string              `yaml:"log_level"`
	Simulation  Simulation          `yaml:"simulation"`
	Devices     []Device            `yaml:"devices"`
	Networks    []Network           `yaml:"networks,omitempty"`
	Memberships map[string][]string `yaml:"memberships,omitempty"`
	AllowRules  []AllowRule         `yaml:"allow_rules,omitempty"`
}

// Simulation holds the clock parameters boot step 1 constructs the
// Clock from.
type Simulation struct {
	ClockMode      string  `yaml:"clock_mode"` // real_time, accelerated, stepped, paused
	Speed          float64 `yaml:"speed,omitempty"`
	UpdateInterval float64 `yaml:"update_interval_s,omitempty"`
}

// Device describes one simulated device and the protocol listeners
// boot step 7 constructs for it.
type Device struct {
	Name          string            `yaml:"name"`
	Kind          string            `yaml:"kind"` // PLC, RTU, HMI, SCADA, Historian, IED, SIS
	ID            int               `yaml:"id"`
	Protocols     []ProtocolBinding `yaml:"protocols,omitempty"`
	Supervises    string            `yaml:"supervises,omitempty"`      // HMI only: the SCADA device it polls
	ScanIntervalS float64           `yaml:"scan_interval_s,omitempty"` // defaults to orchestrator.DefaultScanInterval
}

// ProtocolBinding is one (protocol, host, port) listener a device
// exposes, plus protocol-specific options (e.g. Modbus's unit_id).
type ProtocolBinding struct {
	Protocol string         `yaml:"protocol"`
	Host     string         `yaml:"host,omitempty"`
	Port     int            `yaml:"port"`
	Options  map[string]any `yaml:"options,omitempty"`
}

// Network is one named subnet of the plant topology (spec §4.6).
type Network struct {
	Name string `yaml:"name"`
	CIDR string `yaml:"cidr"`
	VLAN int    `yaml:"vlan,omitempty"`
}

// AllowRule is an explicit cross-network reachability grant loaded
// into the Network Gate alongside the membership map.
type AllowRule struct {
	SrcNetwork string `yaml:"src_network"`
	DstDevice  string `yaml:"dst_device"`
	Protocol   string `yaml:"protocol"`
	Port       int    `yaml:"port"`
}
