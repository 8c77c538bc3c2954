package protocol

import (
	"fmt"
	"log/slog"
	"net"
)

// StubServer is a minimal protocol listener covering session
// registration only: it accepts connections under the same
// admit/session-cap/drain lifecycle as ModbusServer, sends a one-line
// identity banner, and otherwise discards traffic until the peer
// closes. It exists so a Network Gate sweep or port scan finds a real
// open socket speaking to spec (S7, DNP3, IEC-104, OPC UA,
// EtherNet/IP) without carrying a full wire codec for each (spec §4.5:
// "deeper semantics are optional layering").
type StubServer struct {
	*baseServer
	banner string
}

// Default ports per protocol (spec §4.5).
const (
	DefaultS7Port         = 102
	DefaultDNP3Port       = 20000
	DefaultIEC104Port     = 2404
	DefaultOPCUAPort      = 4840
	DefaultEtherNetIPPort = 44818
)

func newStubServer(device, protocolName, addr string, sessionCap int, admit AdmitFunc, log *slog.Logger) *StubServer {
	s := &StubServer{banner: fmt.Sprintf("%s/%s\n", protocolName, device)}
	s.baseServer = newBaseServer(device, protocolName, addr, NewMirror(), sessionCap, admit, log, s.handleConn)
	return s
}

// NewS7Server returns a stub for the Siemens S7 protocol (default port 102),
// grounded on the S7comm server's rack/slot connection handshake without
// implementing the S7comm PDU format itself.
func NewS7Server(device, addr string, sessionCap int, admit AdmitFunc, log *slog.Logger) *StubServer {
	return newStubServer(device, "s7", addr, sessionCap, admit, log)
}

// NewDNP3Server returns a stub for a DNP3 outstation (default port 20000).
func NewDNP3Server(device, addr string, sessionCap int, admit AdmitFunc, log *slog.Logger) *StubServer {
	return newStubServer(device, "dnp3", addr, sessionCap, admit, log)
}

// NewIEC104Server returns a stub for an IEC 60870-5-104 controlled
// station (default port 2404).
func NewIEC104Server(device, addr string, sessionCap int, admit AdmitFunc, log *slog.Logger) *StubServer {
	return newStubServer(device, "iec104", addr, sessionCap, admit, log)
}

// NewOPCUAServer returns a stub for an OPC UA endpoint (default port 4840).
func NewOPCUAServer(device, addr string, sessionCap int, admit AdmitFunc, log *slog.Logger) *StubServer {
	return newStubServer(device, "opcua", addr, sessionCap, admit, log)
}

// NewEtherNetIPServer returns a stub for an EtherNet/IP adapter
// (default port 44818).
func NewEtherNetIPServer(device, addr string, sessionCap int, admit AdmitFunc, log *slog.Logger) *StubServer {
	return newStubServer(device, "ethernet_ip", addr, sessionCap, admit, log)
}

func (s *StubServer) handleConn(conn net.Conn) {
	if _, err := conn.Write([]byte(s.banner)); err != nil {
		return
	}
	buf := make([]byte, 256)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}
