package main

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dougsko/catbridged/pkg/engine"
	"github.com/dougsko/catbridged/pkg/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // status display runs on arbitrary hosts
	},
}

// statusHub fans engine status changes out to websocket clients.
type statusHub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan engine.Status
	done      chan struct{}
}

func newStatusHub() *statusHub {
	return &statusHub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan engine.Status, 16),
		done:      make(chan struct{}),
	}
}

func (h *statusHub) start() {
	go h.worker()
}

func (h *statusHub) stop() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}

// broadcast queues a status push; drops it when the buffer is full so
// the engine tick loop never blocks on slow websocket clients.
func (h *statusHub) broadcastStatus(st engine.Status) {
	select {
	case h.broadcast <- st:
	default:
	}
}

func (h *statusHub) worker() {
	for {
		select {
		case <-h.done:
			return
		case st := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if err := c.WriteJSON(st); err != nil {
					delete(h.clients, c)
					c.Close()
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *statusHub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *statusHub) remove(c *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.Close()
	}
	h.mu.Unlock()
}

func (h *statusHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handle takes ownership of an upgraded connection: the initial
// snapshot goes out before registration so the two writers never
// overlap, then a read loop discards client frames so a close from
// the peer releases the connection without waiting for the next
// broadcast.
func (h *statusHub) handle(conn *websocket.Conn, initial engine.Status) {
	if err := conn.WriteJSON(initial); err != nil {
		conn.Close()
		return
	}
	h.add(conn)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

// handleStatusWebSocket upgrades the connection and pushes status
// updates until the client goes away.
func (d *Daemon) handleStatusWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Errorf("ws", "upgrade failed: %v", err)
		return
	}

	logging.Infof("ws", "status client connected: %s", conn.RemoteAddr())
	d.hub.handle(conn, d.engine.Status())
}
