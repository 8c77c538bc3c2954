package model

import (
	"net"

	"github.com/google/uuid"
)

// ConnectionSession is created per accepted TCP connection and destroyed
// on close. The protocol codec state referenced here is owned by
// internal/protocol; this struct carries the fields the Network Gate and
// orchestrator need to reason about a session without importing the
// protocol package.
type ConnectionSession struct {
	ID         string
	Device     string
	Protocol   string
	SrcNetwork string
	Peer       net.Addr
}

// NewConnectionSession stamps a session with a fresh UUID. Session IDs
// are logged and may surface in external tooling, so they use a real
// UUID rather than a process-local sequence number.
func NewConnectionSession(device, protocol, srcNetwork string, peer net.Addr) *ConnectionSession {
	return &ConnectionSession{
		ID:         uuid.NewString(),
		Device:     device,
		Protocol:   protocol,
		SrcNetwork: srcNetwork,
		Peer:       peer,
	}
}
