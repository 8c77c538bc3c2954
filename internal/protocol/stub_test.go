package protocol

import (
	"bufio"
	"net"
	"testing"
	"time"
)

func TestStubServerSendsBannerAndTracksSession(t *testing.T) {
	srv := NewS7Server("plc1", "127.0.0.1:0", 4, nil, nil)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(time.Second))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read banner: %v", err)
	}
	if line != "s7/plc1\n" {
		t.Fatalf("banner = %q, want %q", line, "s7/plc1\n")
	}
}

func TestStubServerProtocolConstructors(t *testing.T) {
	cases := []struct {
		name     string
		build    func(device, addr string) *StubServer
		protocol string
	}{
		{"s7", func(d, a string) *StubServer { return NewS7Server(d, a, 4, nil, nil) }, "s7"},
		{"dnp3", func(d, a string) *StubServer { return NewDNP3Server(d, a, 4, nil, nil) }, "dnp3"},
		{"iec104", func(d, a string) *StubServer { return NewIEC104Server(d, a, 4, nil, nil) }, "iec104"},
		{"opcua", func(d, a string) *StubServer { return NewOPCUAServer(d, a, 4, nil, nil) }, "opcua"},
		{"ethernet_ip", func(d, a string) *StubServer { return NewEtherNetIPServer(d, a, 4, nil, nil) }, "ethernet_ip"},
	}
	for _, c := range cases {
		srv := c.build("devx", "127.0.0.1:0")
		if srv.Protocol() != c.protocol {
			t.Fatalf("%s: Protocol() = %q, want %q", c.name, srv.Protocol(), c.protocol)
		}
		if srv.Device() != "devx" {
			t.Fatalf("%s: Device() = %q, want devx", c.name, srv.Device())
		}
	}
}
