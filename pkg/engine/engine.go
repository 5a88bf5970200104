// Package engine wires the serial gateway, status cache and raw
// bridge together and drives them from a single cooperative tick
// loop. The engine is the only writer of bridge state; requests from
// other goroutines (HTTP handlers) are either serialized through the
// gateway's channel lease (set operations) or delivered as commands
// consumed at the next tick boundary (suspend/resume).
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/dougsko/catbridged/pkg/bridge"
	"github.com/dougsko/catbridged/pkg/cat"
	"github.com/dougsko/catbridged/pkg/config"
	"github.com/dougsko/catbridged/pkg/logging"
	"github.com/dougsko/catbridged/pkg/status"
	"github.com/dougsko/catbridged/pkg/storage"
)

// Channel is the serial gateway surface the engine depends on.
// Satisfied by *gateway.Gateway.
type Channel interface {
	status.Transactor
	bridge.RawChannel
}

// Status is the engine's externally visible state.
type Status struct {
	status.Snapshot
	BridgeOccupied bool   `json:"bridge_occupied"`
	BridgeClient   string `json:"bridge_client,omitempty"`
	Suspended      bool   `json:"suspended"`
	Uptime         string `json:"uptime"`
}

// command is a control request applied at the next tick boundary.
type command struct {
	suspend bool
	done    chan struct{}
}

// Engine owns the core state: the status cache and the bridge slot.
type Engine struct {
	cfg     *config.Config
	channel Channel
	cache   *status.Cache
	store   *storage.EventStore

	bridgeSrv *bridge.Server

	commands chan command
	stop     chan struct{}
	wg       sync.WaitGroup

	mu         sync.RWMutex
	running    bool
	suspended  bool
	occupied   bool
	clientAddr string
	startTime  time.Time

	onChange func(Status)
	lastPush Status
}

// NewEngine creates an engine. store may be nil to disable the event
// log.
func NewEngine(cfg *config.Config, channel Channel, store *storage.EventStore) *Engine {
	return &Engine{
		cfg:      cfg,
		channel:  channel,
		cache:    status.NewCache(channel, cfg.CommandTimeout()),
		store:    store,
		commands: make(chan command, 4),
		stop:     make(chan struct{}),
	}
}

// OnStatusChange registers a callback invoked from the tick loop
// whenever the visible status changes. Set before Start.
func (e *Engine) OnStatusChange(fn func(Status)) {
	e.onChange = fn
}

// Start opens the bridge listener and launches the tick loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.startTime = time.Now()
	e.mu.Unlock()

	srv, err := bridge.Listen(e.cfg.Bridge.Port, e.channel, e.recordEvent)
	if err != nil {
		return fmt.Errorf("failed to start raw bridge: %w", err)
	}
	e.bridgeSrv = srv
	logging.Infof("engine", "raw bridge listening on %s", srv.Addr())

	e.wg.Add(1)
	go e.run()

	return nil
}

// Stop shuts the tick loop and the bridge down.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	close(e.stop)
	e.wg.Wait()

	if e.bridgeSrv != nil {
		if err := e.bridgeSrv.Close(); err != nil {
			logging.Errorf("engine", "bridge close failed: %v", err)
		}
	}
	return nil
}

// BridgeAddr returns the raw bridge listen address, or "" before
// Start.
func (e *Engine) BridgeAddr() string {
	if e.bridgeSrv == nil {
		return ""
	}
	return e.bridgeSrv.Addr().String()
}

// run is the scheduler: one goroutine drives admission, pumping and
// cache refresh, so the bridge slot has a single owner and raw
// pumping never overlaps a framed transaction mid-tick.
func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return

		case cmd := <-e.commands:
			e.applyCommand(cmd)

		case now := <-ticker.C:
			e.tick(now)
		}
	}
}

// tick runs one scheduler step.
func (e *Engine) tick(now time.Time) {
	e.bridgeSrv.Tick()

	e.mu.Lock()
	e.occupied = e.bridgeSrv.Occupied()
	e.clientAddr = e.bridgeSrv.ClientAddr()
	suspended := e.suspended
	e.mu.Unlock()

	if !suspended {
		e.cache.RefreshIfStale(now, e.cfg.PollInterval())
	}

	e.pushStatus()
}

func (e *Engine) applyCommand(cmd command) {
	e.mu.Lock()
	e.suspended = cmd.suspend
	e.mu.Unlock()

	if cmd.suspend {
		e.bridgeSrv.Suspend()
		e.recordEvent("update_suspend", "")
		logging.Info("engine", "suspended for firmware update")
	} else {
		e.bridgeSrv.Resume()
		e.recordEvent("update_resume", "")
		logging.Info("engine", "resumed after firmware update")
	}

	e.mu.Lock()
	e.occupied = e.bridgeSrv.Occupied()
	e.clientAddr = e.bridgeSrv.ClientAddr()
	e.mu.Unlock()

	e.pushStatus()
	close(cmd.done)
}

// pushStatus invokes the change callback, skipping pushes when
// nothing visible changed.
func (e *Engine) pushStatus() {
	if e.onChange == nil {
		return
	}
	cur := e.Status()
	if cur.FrequencyHz == e.lastPush.FrequencyHz &&
		cur.Mode == e.lastPush.Mode &&
		cur.BridgeOccupied == e.lastPush.BridgeOccupied &&
		cur.Suspended == e.lastPush.Suspended {
		return
	}
	e.lastPush = cur
	e.onChange(cur)
}

// Status returns the current engine state. Safe from any goroutine.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	uptime := ""
	if !e.startTime.IsZero() {
		uptime = time.Since(e.startTime).Round(time.Second).String()
	}

	return Status{
		Snapshot:       e.cache.Snapshot(),
		BridgeOccupied: e.occupied,
		BridgeClient:   e.clientAddr,
		Suspended:      e.suspended,
		Uptime:         uptime,
	}
}

// SetFrequencyMHz parses a MHz display string and issues the set
// transaction. The cache mutates only on acknowledged success.
func (e *Engine) SetFrequencyMHz(mhz string) error {
	hz, err := cat.ParseMHz(mhz)
	if err != nil {
		return err
	}
	if err := e.cache.SetFrequency(hz); err != nil {
		logging.Warnf("engine", "set frequency %s failed: %v", mhz, err)
		return err
	}
	e.recordEvent("frequency_set", cat.FormatMHz(hz))
	return nil
}

// SetMode parses a mode name and issues the set transaction.
func (e *Engine) SetMode(name string) error {
	mode, err := cat.ParseMode(name)
	if err != nil {
		return err
	}
	if err := e.cache.SetMode(mode); err != nil {
		logging.Warnf("engine", "set mode %s failed: %v", name, err)
		return err
	}
	e.recordEvent("mode_set", mode.String())
	return nil
}

// SuspendForUpdate forces the bridge slot to Empty and halts pumping
// and polling so a firmware updater can claim the device. Blocks
// until the tick loop has applied the change.
func (e *Engine) SuspendForUpdate() {
	e.control(true)
}

// ResumeAfterUpdate restores normal operation.
func (e *Engine) ResumeAfterUpdate() {
	e.control(false)
}

func (e *Engine) control(suspend bool) {
	cmd := command{suspend: suspend, done: make(chan struct{})}
	select {
	case e.commands <- cmd:
		select {
		case <-cmd.done:
		case <-e.stop:
		}
	case <-e.stop:
	}
}

// RecentEvents returns the newest entries from the event log.
func (e *Engine) RecentEvents(limit int) ([]storage.Event, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.RecentEvents(limit)
}

func (e *Engine) recordEvent(kind, detail string) {
	if e.store == nil {
		return
	}
	if err := e.store.Record(kind, detail); err != nil {
		logging.Errorf("engine", "failed to record event %s: %v", kind, err)
	}
}
