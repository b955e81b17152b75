// Package gateway manages live dashboard connections: a one-time state
// replay on connect, then best-effort fan-out of every bus event to every
// open connection until it disconnects.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"netwatch/internal/bus"
	"netwatch/internal/metrics"
	"netwatch/internal/model"

	"github.com/gorilla/websocket"
)

// snapshotLogCount is how many recent logs the initial snapshot replays.
const snapshotLogCount = 10

// snapshotTimeout bounds the store reads behind one initial snapshot.
const snapshotTimeout = 5 * time.Second

// Hub owns the broadcast set. Delivery is at-most-once per connection per
// event: a client that cannot keep up is dropped, never queued behind.
type Hub struct {
	store    model.Store
	mset     *metrics.Set
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub creates a hub over the given store. mset may be nil.
func NewHub(store model.Store, mset *metrics.Set) *Hub {
	return &Hub{
		store: store,
		mset:  mset,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served without authentication; origin
			// checking follows suit.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*Client]struct{}),
	}
}

// Attach subscribes the hub to a bus and returns the unsubscribe function.
func (h *Hub) Attach(b *bus.Bus) func() {
	return b.Subscribe(h.broadcast)
}

// ServeWS upgrades an HTTP request into a gateway connection, registers it,
// and kicks off the asynchronous initial-state replay. The replay may race
// with events published after registration; ordering between the snapshot
// and those events is not guaranteed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Gateway: upgrade failed: %v", err)
		return
	}

	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.mset.AddOpenClients(1)
	log.Printf("Gateway: client %s connected from %s", c.id, r.RemoteAddr)

	go c.writePump()
	go c.readPump()
	go h.sendSnapshot(c)
}

// sendSnapshot assembles and enqueues the one-time initial state for a new
// client. Failures are logged and dropped; a missed snapshot does not close
// the connection.
func (h *Hub) sendSnapshot(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	stats, err := model.BuildDashboardStats(ctx, h.store)
	if err != nil {
		log.Printf("Gateway: failed to build snapshot stats for %s: %v", c.id, err)
		return
	}
	alerts, err := h.store.Alerts(ctx, true, 0)
	if err != nil {
		log.Printf("Gateway: failed to read snapshot alerts for %s: %v", c.id, err)
		return
	}
	logs, err := h.store.RecentLogs(ctx, snapshotLogCount)
	if err != nil {
		log.Printf("Gateway: failed to read snapshot logs for %s: %v", c.id, err)
		return
	}
	if alerts == nil {
		alerts = []*model.Alert{}
	}
	if logs == nil {
		logs = []*model.TrafficLog{}
	}

	msg, err := json.Marshal(envelope{
		Type: MessageInitialData,
		Data: initialData{Stats: stats, Alerts: alerts, Logs: logs},
	})
	if err != nil {
		log.Printf("Gateway: failed to encode snapshot for %s: %v", c.id, err)
		return
	}
	h.enqueue(c, msg)
}

// broadcast fans one bus event out to every open connection. It runs on the
// publisher's goroutine, so each connection sees events in publish order.
func (h *Hub) broadcast(ev model.Event) {
	msg, ok := encodeEvent(ev)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// A full buffer means the client stopped draining; treat it as
			// an implicit disconnect.
			h.mset.IncDroppedSends()
			h.dropLocked(c)
		}
	}
}

// enqueue delivers one message to a single client if it is still registered.
func (h *Hub) enqueue(c *Client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.mset.IncDroppedSends()
		h.dropLocked(c)
	}
}

// unregister removes a client from the broadcast set. Safe to call more than
// once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked removes and finalizes a client. Caller holds h.mu.
func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.closeSend()
	h.mset.AddOpenClients(-1)
	log.Printf("Gateway: client %s disconnected", c.id)
}

// ClientCount returns the number of currently open connections.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown drops every client so their pumps wind down.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}
