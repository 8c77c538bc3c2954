// Package protocol implements the protocol-server contract of spec §4.5
// (start/stop/mirror_push/mirror_pull) and the listeners themselves: a
// bit-exact Modbus TCP codec plus minimal session-registration stubs for
// the other field protocols.
package protocol

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/icsim/simcore/pkg/kerrors"
	"github.com/icsim/simcore/pkg/model"
)

// AdmitFunc evaluates the Network Gate's admission decision for a
// newly-accepted connection (spec §4.6). The orchestrator wires this to
// the real Network Gate; tests may supply an always-allow stub.
type AdmitFunc func(peer net.Addr) (allowed bool, srcNetwork string)

// Server is the protocol-server contract every listener implements
// (spec §4.5).
type Server interface {
	Start() error
	Stop() error
	MirrorPush(partial *model.MemoryMap)
	MirrorPull() *model.MemoryMap
	Device() string
	Protocol() string
	Addr() string
}

// drainTimeout is the default wall-clock window Stop() waits for
// in-flight sessions to finish before forcing them closed (spec §5:
// "a short drain window (default 500ms wall), then aborted").
const drainTimeout = 500 * time.Millisecond

type connHandler func(conn net.Conn)

// baseServer implements the accept/admit/session-cap/drain lifecycle
// shared by every protocol listener; each protocol supplies only its
// own connHandler (the wire codec loop).
type baseServer struct {
	device   string
	protocol string
	addr     string
	mirror   *Mirror
	limiter  *sessionLimiter
	admit    AdmitFunc
	log      *slog.Logger
	handle   connHandler

	mu       sync.Mutex
	ln       net.Listener
	sessions map[net.Conn]struct{}
	wg       sync.WaitGroup
}

func newBaseServer(device, protocolName, addr string, mirror *Mirror, sessionCap int, admit AdmitFunc, log *slog.Logger, handle connHandler) *baseServer {
	if admit == nil {
		admit = func(net.Addr) (bool, string) { return true, "" }
	}
	if log == nil {
		log = slog.Default()
	}
	return &baseServer{
		device:   device,
		protocol: protocolName,
		addr:     addr,
		mirror:   mirror,
		limiter:  newSessionLimiter(sessionCap),
		admit:    admit,
		log:      log,
		handle:   handle,
		sessions: make(map[net.Conn]struct{}),
	}
}

func (b *baseServer) Device() string   { return b.device }
func (b *baseServer) Protocol() string { return b.protocol }

func (b *baseServer) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln != nil {
		return b.ln.Addr().String()
	}
	return b.addr
}

func (b *baseServer) MirrorPush(partial *model.MemoryMap) { b.mirror.Push(partial) }
func (b *baseServer) MirrorPull() *model.MemoryMap         { return b.mirror.Pull() }

// Start binds the listener and begins accepting in the background,
// returning once the socket is listening (spec §4.5 start()).
func (b *baseServer) Start() error {
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("%s listener for %s on %s: %w", b.protocol, b.device, b.addr, kerrors.ErrBindFailed)
	}
	b.mu.Lock()
	b.ln = ln
	b.mu.Unlock()

	b.wg.Add(1)
	go b.acceptLoop(ln)
	return nil
}

func (b *baseServer) acceptLoop(ln net.Listener) {
	defer b.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}

		allowed, srcNetwork := b.admit(conn.RemoteAddr())
		if !allowed {
			b.log.Warn("connection denied", "protocol", b.protocol, "device", b.device,
				"peer", conn.RemoteAddr(), "src_network", srcNetwork)
			conn.Close()
			continue
		}
		if !b.limiter.TryAcquire() {
			b.log.Warn("session cap exceeded, dropping connection", "protocol", b.protocol, "device", b.device)
			conn.Close()
			continue
		}

		b.mu.Lock()
		b.sessions[conn] = struct{}{}
		b.mu.Unlock()

		b.wg.Add(1)
		go b.runSession(conn)
	}
}

func (b *baseServer) runSession(conn net.Conn) {
	defer b.wg.Done()
	defer b.limiter.Release()
	defer func() {
		b.mu.Lock()
		delete(b.sessions, conn)
		b.mu.Unlock()
	}()
	defer conn.Close()

	b.handle(conn)
}

// Stop stops accepting, then waits up to drainTimeout for in-flight
// sessions before forcing their connections closed (spec §4.5 stop(),
// §5 cancellation).
func (b *baseServer) Stop() error {
	b.mu.Lock()
	ln := b.ln
	b.mu.Unlock()
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(drainTimeout):
		b.mu.Lock()
		for conn := range b.sessions {
			conn.Close()
		}
		b.mu.Unlock()
		<-done
		return nil
	}
}
