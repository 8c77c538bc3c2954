// Package netgate implements the topology registry and connection
// admission decision of spec §4.6: which source network a peer
// address belongs to, and whether that network may reach a given
// device/protocol/port.
package netgate

import (
	"net"
	"net/netip"
	"sort"
	"sync"

	"github.com/icsim/simcore/pkg/kerrors"
	"github.com/icsim/simcore/pkg/model"
)

// CorporateNetwork is the designated fallback source network used when
// a peer address matches no configured CIDR (spec §4.6).
const CorporateNetwork = "corporate_network"

// DeniedConnection records one admission refusal, kept for inspection
// by tests and telemetry (spec §4.6 "a ConnectionDenied record is
// appended with peer, device, reason").
type DeniedConnection struct {
	Peer   string
	Device string
	Reason string
}

// Gate holds the network topology and evaluates reachability.
type Gate struct {
	mu sync.RWMutex

	networks    map[string]model.Network
	prefixes    map[string]netip.Prefix // only networks with a parseable CIDR
	memberships map[string]map[string]struct{} // network -> set of device names
	services    map[model.ServiceKey]struct{}
	allows      map[model.AllowRule]struct{}

	denied []DeniedConnection
}

// New returns an empty Gate.
func New() *Gate {
	return &Gate{
		networks:    make(map[string]model.Network),
		prefixes:    make(map[string]netip.Prefix),
		memberships: make(map[string]map[string]struct{}),
		services:    make(map[model.ServiceKey]struct{}),
		allows:      make(map[model.AllowRule]struct{}),
	}
}

// Load replaces the gate's topology with networks and memberships
// (network name -> device names). It validates that every membership
// references a device present in knownDevices, per boot step 6's
// "validate that every membership references a registered device
// (else TopologyInvalid)".
func (g *Gate) Load(networks []model.Network, memberships map[string][]string, knownDevices map[string]struct{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	netByName := make(map[string]model.Network, len(networks))
	prefixes := make(map[string]netip.Prefix, len(networks))
	for _, n := range networks {
		netByName[n.Name] = n
		if n.CIDR != "" {
			p, err := netip.ParsePrefix(n.CIDR)
			if err == nil {
				prefixes[n.Name] = p
			}
		}
	}

	members := make(map[string]map[string]struct{}, len(memberships))
	for netName, devices := range memberships {
		if _, ok := netByName[netName]; !ok {
			return kerrors.ErrTopologyInvalid
		}
		set := make(map[string]struct{}, len(devices))
		for _, d := range devices {
			if _, ok := knownDevices[d]; !ok {
				return kerrors.ErrTopologyInvalid
			}
			set[d] = struct{}{}
		}
		members[netName] = set
	}

	g.networks = netByName
	g.prefixes = prefixes
	g.memberships = members
	return nil
}

// ExposeService registers that device is listening for protocol on
// port, as the orchestrator's boot step 7 does for every protocol
// entry in the configuration catalogue.
func (g *Gate) ExposeService(device, protocol string, port int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.services[model.ServiceKey{Device: device, Protocol: protocol, Port: port}] = struct{}{}
}

// AllowCrossNetwork registers an explicit allow rule (spec §4.6 "(b)
// an explicit allow rule (src_network, dst_device, protocol, port) ->
// allow").
func (g *Gate) AllowCrossNetwork(rule model.AllowRule) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allows[rule] = struct{}{}
}

// InferSourceNetwork matches peer against every network's CIDR,
// falling back to CorporateNetwork if none match (spec §4.6).
// Networks are checked in a stable, most-specific-first order so that
// overlapping subnets resolve deterministically.
func (g *Gate) InferSourceNetwork(peer net.Addr) string {
	host, _, err := net.SplitHostPort(peer.String())
	if err != nil {
		host = peer.String()
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return CorporateNetwork
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	type candidate struct {
		name string
		bits int
	}
	var matches []candidate
	for name, p := range g.prefixes {
		if p.Contains(addr) {
			matches = append(matches, candidate{name, p.Bits()})
		}
	}
	if len(matches) == 0 {
		return CorporateNetwork
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].bits != matches[j].bits {
			return matches[i].bits > matches[j].bits
		}
		return matches[i].name < matches[j].name
	})
	return matches[0].name
}

// CanReach evaluates whether srcNetwork may reach (device, protocol,
// port), per spec §4.6: same-network membership or an explicit allow
// rule.
func (g *Gate) CanReach(srcNetwork, device, protocol string, port int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, exposed := g.services[model.ServiceKey{Device: device, Protocol: protocol, Port: port}]; !exposed {
		return false
	}

	if members, ok := g.memberships[srcNetwork]; ok {
		if _, onSameNetwork := members[device]; onSameNetwork {
			return true
		}
	}

	_, allowed := g.allows[model.AllowRule{SrcNetwork: srcNetwork, DstDevice: device, Protocol: protocol, Port: port}]
	return allowed
}

// Admit is the admission hook passed to protocol listeners: it infers
// the source network from peer, evaluates CanReach, and records a
// DeniedConnection on refusal.
func (g *Gate) Admit(device, protocol string, port int) func(peer net.Addr) (bool, string) {
	return func(peer net.Addr) (bool, string) {
		srcNetwork := g.InferSourceNetwork(peer)
		if g.CanReach(srcNetwork, device, protocol, port) {
			return true, srcNetwork
		}

		g.mu.Lock()
		g.denied = append(g.denied, DeniedConnection{
			Peer:   peer.String(),
			Device: device,
			Reason: "not reachable from " + srcNetwork,
		})
		g.mu.Unlock()
		return false, srcNetwork
	}
}

// DeniedConnections returns a copy of every recorded admission
// refusal, most recent last.
func (g *Gate) DeniedConnections() []DeniedConnection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]DeniedConnection, len(g.denied))
	copy(out, g.denied)
	return out
}

// Networks returns the names of every loaded network, sorted.
func (g *Gate) Networks() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.networks))
	for name := range g.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DualHomed reports whether device is a member of more than one
// network (spec §4.6: "permitted by design").
func (g *Gate) DualHomed(device string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, members := range g.memberships {
		if _, ok := members[device]; ok {
			count++
		}
	}
	return count > 1
}
