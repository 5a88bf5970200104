// Package gateway owns the physical serial channel to the radio.
//
// The channel is half duplex and has exactly one owner: every byte in
// or out of the radio moves through a Gateway. Two access modes are
// offered, framed transactions (write a command, read until the
// terminator) and raw single-shot reads/writes for the network
// bridge. Both modes contend for the same channel lease, so a framed
// response can never be interleaved with raw bridge traffic.
package gateway

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/dougsko/catbridged/pkg/cat"
)

// ErrTimeout indicates that no terminator arrived within the
// transaction deadline. The accompanying byte slice holds whatever
// partial response was accumulated.
var ErrTimeout = errors.New("transaction timeout")

// pollInterval bounds each individual port read so neither mode can
// sit on the lease waiting for bytes that never come.
const pollInterval = 5 * time.Millisecond

// Port is the subset of go.bug.st/serial.Port the gateway needs.
// Tests substitute a scripted implementation.
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Gateway arbitrates the serial channel between framed transactions
// and raw bridge traffic.
type Gateway struct {
	port Port

	// lease is the channel lease. Transact holds it for the whole
	// write+read cycle; raw operations hold it per call.
	lease sync.Mutex
}

// Open opens the serial device at 8N1 and wraps it in a Gateway.
func Open(device string, baud int) (*Gateway, error) {
	if baud == 0 {
		baud = 9600
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial device %s: %w", device, err)
	}

	return New(port), nil
}

// New wraps an already-open port.
func New(port Port) *Gateway {
	return &Gateway{port: port}
}

// Close closes the underlying port.
func (g *Gateway) Close() error {
	g.lease.Lock()
	defer g.lease.Unlock()
	return g.port.Close()
}

// Transact writes frame fully, then reads until the CAT terminator is
// observed or timeout elapses. The returned slice contains the
// terminator only as its final byte. On timeout the accumulated
// partial bytes are returned together with ErrTimeout.
//
// The channel lease is held for the entire cycle: the write phase
// always completes before the read phase begins, and no raw bridge
// byte can move while a transaction is in flight.
func (g *Gateway) Transact(frame []byte, timeout time.Duration) ([]byte, error) {
	g.lease.Lock()
	defer g.lease.Unlock()

	if err := g.writeFull(frame); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	resp := make([]byte, 0, 16)
	one := make([]byte, 1)

	// One byte at a time so the read never overshoots the
	// terminator; anything after it belongs to the next frame or to
	// the raw bridge.
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return resp, ErrTimeout
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}
		if err := g.port.SetReadTimeout(remaining); err != nil {
			return resp, fmt.Errorf("failed to set read timeout: %w", err)
		}

		n, err := g.port.Read(one)
		if err != nil {
			return resp, fmt.Errorf("serial read failed: %w", err)
		}
		if n == 0 {
			continue
		}

		resp = append(resp, one[0])
		if one[0] == cat.Terminator {
			return resp, nil
		}
	}
}

// RawWrite writes p to the serial channel verbatim on behalf of the
// network bridge. Blocks only while a transaction holds the lease.
func (g *Gateway) RawWrite(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	g.lease.Lock()
	defer g.lease.Unlock()
	return g.writeFull(p)
}

// RawRead drains available bytes from the serial channel into p and
// returns the count. A single read is bounded by pollInterval, so an
// idle channel costs at most one short wait per call.
func (g *Gateway) RawRead(p []byte) (int, error) {
	g.lease.Lock()
	defer g.lease.Unlock()

	if err := g.port.SetReadTimeout(pollInterval); err != nil {
		return 0, fmt.Errorf("failed to set read timeout: %w", err)
	}

	n, err := g.port.Read(p)
	if err != nil {
		return n, fmt.Errorf("serial read failed: %w", err)
	}
	return n, nil
}

// writeFull writes p completely; callers hold the lease.
func (g *Gateway) writeFull(p []byte) error {
	for len(p) > 0 {
		n, err := g.port.Write(p)
		if err != nil {
			return fmt.Errorf("serial write failed: %w", err)
		}
		p = p[n:]
	}
	return nil
}
