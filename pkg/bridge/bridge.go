// Package bridge exposes the serial channel to one TCP client as a
// transparent byte stream. Admission policy is first come, first
// served: while a client is connected every later attempt is closed
// immediately, and a dead client is reclaimed on the next tick.
package bridge

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dougsko/catbridged/pkg/logging"
)

// RawChannel is the raw access mode of the serial gateway.
type RawChannel interface {
	RawWrite(p []byte) error
	RawRead(p []byte) (int, error)
}

// EventFunc receives admission lifecycle events for the event log.
type EventFunc func(kind, detail string)

// Lifecycle event kinds.
const (
	EventConnected    = "bridge_connected"
	EventRejected     = "bridge_rejected"
	EventDisconnected = "bridge_disconnected"
)

// readDeadline bounds every per-tick network read so the pump can
// never stall the scheduler.
const readDeadline = time.Millisecond

// writeDeadline bounds every per-tick write to the client. A peer
// that stops reading fills its TCP buffers and times out here; it is
// dropped rather than allowed to wedge the tick loop.
const writeDeadline = 10 * time.Millisecond

// maxDrainsPerTick caps how many buffers each direction may move in
// one tick; the rest waits for the next tick.
const maxDrainsPerTick = 8

// Server owns the listener and the single client slot.
type Server struct {
	listener *net.TCPListener
	raw      RawChannel
	notify   EventFunc

	client    net.Conn // nil when the slot is Empty
	suspended bool

	netBuf    []byte
	serialBuf []byte
}

// Listen starts the raw bridge listener on the given port.
func Listen(port int, raw RawChannel, notify EventFunc) (*Server, error) {
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bridge address: %w", err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on bridge port %d: %w", port, err)
	}
	return NewServer(ln, raw, notify), nil
}

// NewServer wraps an existing listener; tests use this with an
// ephemeral port.
func NewServer(ln *net.TCPListener, raw RawChannel, notify EventFunc) *Server {
	if notify == nil {
		notify = func(string, string) {}
	}
	return &Server{
		listener:  ln,
		raw:       raw,
		notify:    notify,
		netBuf:    make([]byte, 1024),
		serialBuf: make([]byte, 1024),
	}
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Occupied reports whether a client currently holds the slot.
func (s *Server) Occupied() bool {
	return s.client != nil
}

// ClientAddr returns the admitted client's remote address, or "".
func (s *Server) ClientAddr() string {
	if s.client == nil {
		return ""
	}
	return s.client.RemoteAddr().String()
}

// Tick runs one scheduler step: admit or reject pending connections,
// then pump bytes for the admitted client. Called only from the
// engine's tick loop.
func (s *Server) Tick() {
	s.admit()
	if s.client != nil && !s.suspended {
		s.pump()
	}
}

// Suspend force-closes any admitted client and stops admitting new
// ones, so the firmware-update collaborator can claim the device.
func (s *Server) Suspend() {
	s.suspended = true
	s.drop("suspended for update")
}

// Resume re-enables admission after an update.
func (s *Server) Resume() {
	s.suspended = false
}

// Close shuts down the listener and drops the client.
func (s *Server) Close() error {
	s.drop("server shutdown")
	return s.listener.Close()
}

// admit handles all connection attempts pending this tick. The
// accept is bounded by a short deadline so an idle listener costs at
// most one readDeadline per tick.
func (s *Server) admit() {
	for {
		if err := s.listener.SetDeadline(time.Now().Add(readDeadline)); err != nil {
			return
		}
		conn, err := s.listener.Accept()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return // nothing pending
			}
			return
		}

		if s.suspended || s.client != nil {
			// Slot taken: close actively so the peer's resources are
			// released, no error frame, state unchanged.
			s.notify(EventRejected, conn.RemoteAddr().String())
			logging.Infof("bridge", "rejected %s (slot occupied)", conn.RemoteAddr())
			conn.Close()
			continue
		}

		s.client = conn
		s.notify(EventConnected, conn.RemoteAddr().String())
		logging.Infof("bridge", "client connected: %s", conn.RemoteAddr())
	}
}

// pump moves currently-available bytes in both directions with no
// protocol interpretation. Client first for fairness; order does not
// affect correctness since no transaction is in flight mid-tick.
func (s *Server) pump() {
	for i := 0; i < maxDrainsPerTick && s.client != nil; i++ {
		if !s.pumpClientToSerial() {
			break
		}
	}
	for i := 0; i < maxDrainsPerTick && s.client != nil; i++ {
		if !s.pumpSerialToClient() {
			break
		}
	}
}

// pumpClientToSerial drains one buffer of client input to the serial
// channel. Returns false when no more data is immediately available.
func (s *Server) pumpClientToSerial() bool {
	if err := s.client.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		s.drop(fmt.Sprintf("deadline error: %v", err))
		return false
	}

	n, err := s.client.Read(s.netBuf)
	if n > 0 {
		if werr := s.raw.RawWrite(s.netBuf[:n]); werr != nil {
			logging.Errorf("bridge", "serial write failed: %v", werr)
		}
	}
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return false
		}
		// Failed liveness check: reclaim the slot.
		s.drop(fmt.Sprintf("read failed: %v", err))
		return false
	}
	return n > 0
}

// pumpSerialToClient drains one buffer of radio output to the client.
func (s *Server) pumpSerialToClient() bool {
	n, err := s.raw.RawRead(s.serialBuf)
	if err != nil {
		logging.Errorf("bridge", "serial read failed: %v", err)
		return false
	}
	if n == 0 {
		return false
	}
	if err := s.client.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		s.drop(fmt.Sprintf("deadline error: %v", err))
		return false
	}
	if _, err := s.client.Write(s.serialBuf[:n]); err != nil {
		s.drop(fmt.Sprintf("write failed: %v", err))
		return false
	}
	return true
}

// drop tears down the admitted client, if any.
func (s *Server) drop(reason string) {
	if s.client == nil {
		return
	}
	addr := s.client.RemoteAddr().String()
	s.client.Close()
	s.client = nil
	s.notify(EventDisconnected, addr)
	logging.Infof("bridge", "client %s disconnected (%s)", addr, reason)
}
