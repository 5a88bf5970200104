// Package status maintains the last-known radio state. Reads are
// served from the cache so a serial hiccup never surfaces as a
// user-facing fault; explicit set operations report failure instead.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/dougsko/catbridged/pkg/cat"
)

// Transactor issues one framed command/response cycle over the serial
// channel. Satisfied by *gateway.Gateway; tests substitute a fake.
type Transactor interface {
	Transact(frame []byte, timeout time.Duration) ([]byte, error)
}

// Snapshot is the read surface consumed by the display layer.
type Snapshot struct {
	FrequencyHz  int64     `json:"frequency_hz"`
	FrequencyMHz string    `json:"frequency_mhz"`
	Mode         string    `json:"mode"`
	LastRefresh  time.Time `json:"last_refresh"`
}

// Cache holds the last-known frequency and mode. One instance lives
// for the whole process; it is mutated only by Refresh and the set
// operations.
type Cache struct {
	tx      Transactor
	timeout time.Duration

	mu          sync.RWMutex
	frequency   int64
	mode        cat.Mode
	lastRefresh time.Time
}

// NewCache creates a cache with placeholder state. timeout bounds
// each individual transaction.
func NewCache(tx Transactor, timeout time.Duration) *Cache {
	return &Cache{
		tx:        tx,
		timeout:   timeout,
		frequency: 14074000,
		mode:      cat.ModeUSB,
	}
}

// Snapshot returns the current cached state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		FrequencyHz:  c.frequency,
		FrequencyMHz: cat.FormatMHz(c.frequency),
		Mode:         c.mode.String(),
		LastRefresh:  c.lastRefresh,
	}
}

// RefreshIfStale refreshes the cache when interval has elapsed since
// the last attempt. It reports whether a refresh was attempted.
// lastRefresh advances even when the radio does not answer, so a dead
// radio is polled at the configured interval and no faster.
func (c *Cache) RefreshIfStale(now time.Time, interval time.Duration) bool {
	c.mu.RLock()
	stale := now.Sub(c.lastRefresh) >= interval
	c.mu.RUnlock()
	if !stale {
		return false
	}
	c.Refresh(now)
	return true
}

// Refresh queries frequency and mode as two independent transactions.
// Either side falls back to the previous cached value on timeout or a
// malformed response.
func (c *Cache) Refresh(now time.Time) {
	freq, freqErr := c.queryFrequency()
	mode, modeErr := c.queryMode()

	c.mu.Lock()
	defer c.mu.Unlock()
	if freqErr == nil {
		c.frequency = freq
	}
	if modeErr == nil {
		c.mode = mode
	}
	c.lastRefresh = now
}

// SetFrequency issues a set transaction and updates the cache only on
// an acknowledged response.
func (c *Cache) SetFrequency(hz int64) error {
	if hz < 0 || hz > cat.MaxFrequency {
		return fmt.Errorf("frequency %d Hz outside wire format", hz)
	}

	resp, err := c.tx.Transact(cat.EncodeSetFrequency(hz), c.timeout)
	if err != nil {
		return fmt.Errorf("set frequency failed: %w", err)
	}
	if !cat.ParseAck(resp, "FA") {
		return fmt.Errorf("set frequency not acknowledged: %w", cat.ErrMalformed)
	}

	c.mu.Lock()
	c.frequency = hz
	c.mu.Unlock()
	return nil
}

// SetMode is symmetric to SetFrequency.
func (c *Cache) SetMode(mode cat.Mode) error {
	resp, err := c.tx.Transact(cat.EncodeSetMode(mode), c.timeout)
	if err != nil {
		return fmt.Errorf("set mode failed: %w", err)
	}
	if !cat.ParseAck(resp, "MD") {
		return fmt.Errorf("set mode not acknowledged: %w", cat.ErrMalformed)
	}

	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	return nil
}

func (c *Cache) queryFrequency() (int64, error) {
	resp, err := c.tx.Transact(cat.EncodeQuery("FA"), c.timeout)
	if err != nil {
		return 0, err
	}
	return cat.ParseFrequencyResponse(resp)
}

func (c *Cache) queryMode() (cat.Mode, error) {
	resp, err := c.tx.Transact(cat.EncodeQuery("MD"), c.timeout)
	if err != nil {
		return 0, err
	}
	return cat.ParseModeResponse(resp)
}
