package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPort feeds canned response bytes after each observed write.
type scriptedPort struct {
	mu       sync.Mutex
	pending  []byte // bytes the fake radio has emitted
	written  []byte // everything written to the port
	response []byte // queued up on the next write
	closed   bool
}

func (p *scriptedPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		// Port read timeout: no data available.
		return 0, nil
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *scriptedPort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, buf...)
	if p.response != nil {
		p.pending = append(p.pending, p.response...)
		p.response = nil
	}
	return len(buf), nil
}

func (p *scriptedPort) SetReadTimeout(time.Duration) error { return nil }

func (p *scriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *scriptedPort) writtenBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

func (p *scriptedPort) inject(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, b...)
}

func TestTransact(t *testing.T) {
	t.Run("Complete Response", func(t *testing.T) {
		port := &scriptedPort{response: []byte("FA00014074000;")}
		g := New(port)

		resp, err := g.Transact([]byte("FA;"), 100*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, "FA00014074000;", string(resp))
		assert.Equal(t, "FA;", string(port.writtenBytes()))
	})

	t.Run("Terminator Only As Final Byte", func(t *testing.T) {
		// Two frames queued; Transact must stop at the first
		// terminator and leave the rest on the channel.
		port := &scriptedPort{response: []byte("MD2;FA00014074000;")}
		g := New(port)

		resp, err := g.Transact([]byte("MD;"), 100*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, "MD2;", string(resp))

		buf := make([]byte, 64)
		n, err := g.RawRead(buf)
		require.NoError(t, err)
		assert.Equal(t, "FA00014074000;", string(buf[:n]))
	})

	t.Run("Timeout Returns Partial Bytes", func(t *testing.T) {
		port := &scriptedPort{response: []byte("FA000")} // never terminated
		g := New(port)

		resp, err := g.Transact([]byte("FA;"), 30*time.Millisecond)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, "FA000", string(resp))
	})

	t.Run("Timeout With No Response", func(t *testing.T) {
		port := &scriptedPort{}
		g := New(port)

		resp, err := g.Transact([]byte("FA;"), 20*time.Millisecond)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Empty(t, resp)
	})
}

func TestRawPassThrough(t *testing.T) {
	port := &scriptedPort{}
	g := New(port)

	// Bytes from the network client go to the serial channel verbatim.
	require.NoError(t, g.RawWrite([]byte("ID;")))
	assert.Equal(t, "ID;", string(port.writtenBytes()))

	// Bytes from the radio come back unmodified.
	port.inject([]byte("ID019;"))
	buf := make([]byte, 64)
	n, err := g.RawRead(buf)
	require.NoError(t, err)
	assert.Equal(t, "ID019;", string(buf[:n]))
}

func TestRawReadBounded(t *testing.T) {
	port := &scriptedPort{}
	g := New(port)

	buf := make([]byte, 64)
	start := time.Now()
	n, err := g.RawRead(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestTransactExcludesRawTraffic(t *testing.T) {
	// A raw write issued while a transaction is in flight must not
	// land between the command frame and its response read.
	port := &scriptedPort{response: []byte("FA00014074000;")}
	g := New(port)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = g.RawWrite([]byte("ID;"))
	}()

	resp, err := g.Transact([]byte("FA;"), 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "FA00014074000;", string(resp))
	wg.Wait()

	// Whatever the interleaving, the command frame stayed contiguous.
	written := string(port.writtenBytes())
	assert.Contains(t, written, "FA;")
	assert.Contains(t, written, "ID;")
}

func TestClose(t *testing.T) {
	port := &scriptedPort{}
	g := New(port)
	require.NoError(t, g.Close())
	assert.True(t, port.closed)
}
