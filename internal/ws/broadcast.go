package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftwatch/backend/internal/session"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans detection state out to connected UI clients. Snapshot
// pushes are throttled: detector transitions can cluster (several flips in
// the same moment), and only the latest state matters, so pending pushes
// collapse into one flush. Alerts and events are never throttled.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	source   func() SnapshotPayload
	throttle time.Duration

	snapshotTicker *time.Ticker

	flushMu     sync.Mutex
	pendingSnap *SnapshotPayload
	flushTimer  *time.Timer
}

// NewBroadcaster builds a broadcaster reading full state from source. The
// snapshotInterval resync tick repairs any client that missed a delta.
func NewBroadcaster(source func() SnapshotPayload, throttle, snapshotInterval time.Duration) *Broadcaster {
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		source:   source,
		throttle: throttle,
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	msg := WSMessage{Type: MsgSnapshot, Payload: b.source()}
	data, _ := json.Marshal(msg)

	select {
	case c.send <- data:
	default:
		// Client too slow, drop the snapshot
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// QueueSnapshot schedules a throttled state push. Later snapshots replace
// earlier pending ones; clients only ever need the latest.
func (b *Broadcaster) QueueSnapshot(payload SnapshotPayload) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingSnap = &payload

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// BroadcastAlert pushes an alert immediately, bypassing the throttle: the
// deduplicator already rate-limited it and alert latency is user-visible.
func (b *Broadcaster) BroadcastAlert(typ session.DistractionType, at time.Time) {
	b.broadcast(WSMessage{
		Type:    MsgAlert,
		Payload: AlertPayload{DistractionType: typ, At: at},
	})
}

// BroadcastEvent pushes a recorded distraction event immediately.
func (b *Broadcaster) BroadcastEvent(ev session.DistractionEvent) {
	b.broadcast(WSMessage{
		Type:    MsgEvent,
		Payload: EventPayload{Event: ev},
	})
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	snap := b.pendingSnap
	b.pendingSnap = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if snap == nil {
		return
	}
	b.broadcast(WSMessage{Type: MsgSnapshot, Payload: *snap})
}

func (b *Broadcaster) snapshotLoop() {
	for range b.snapshotTicker.C {
		b.broadcast(WSMessage{Type: MsgSnapshot, Payload: b.source()})
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
