package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/tejuiceB/FractionFi/internal/metrics"
)

// Hub tracks connections and room membership and stamps every outbound
// frame with a hub-wide monotonic sequence. Publish only enqueues onto
// per-client buffers; the clients' write pumps do the actual sends, so
// the matching path never waits on a socket.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	seq     uint64

	t *tomb.Tomb
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
	}
}

// Run ties the hub's lifetime to ctx. Client pumps are supervised by
// the hub's tomb; Run blocks until the context ends and every pump has
// exited.
func (h *Hub) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)
	h.mu.Lock()
	h.t = t
	h.mu.Unlock()

	t.Go(func() error {
		<-ctx.Done()
		h.closeAll()
		return nil
	})
	return t.Wait()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
}

// Publish enqueues a batch of room-addressed events. Sequence order
// within the batch matches slice order, and because the whole batch is
// stamped under one lock, subscribers in a room observe events in the
// order they were handed in.
func (h *Hub) Publish(batch ...Outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range batch {
		members := h.rooms[out.Room]
		if len(members) == 0 {
			// Sequence numbers are only consumed by delivered frames;
			// an empty room costs nothing.
			continue
		}
		frame := h.stampLocked(out.Event)
		for c := range members {
			h.enqueueLocked(c, frame)
		}
	}
}

// stampLocked wraps an event in its envelope and marshals it once for
// every subscriber. Callers hold h.mu.
func (h *Hub) stampLocked(ev Event) []byte {
	h.seq++
	data, err := json.Marshal(Frame{Type: ev.Type, Data: ev.Data, ServerSequence: h.seq})
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("marshal frame")
		return nil
	}
	return data
}

func (h *Hub) enqueueLocked(c *Client, frame []byte) {
	if frame == nil {
		return
	}
	select {
	case c.send <- frame:
		metrics.BroadcastSends.Inc()
	default:
		// The subscriber's buffer is full; it is too slow to keep.
		log.Warn().Str("connection", c.ID).Msg("evicting slow subscriber")
		metrics.BroadcastEvictions.Inc()
		h.dropLocked(c)
	}
}

// sendTo stamps and enqueues one event for a single client, for direct
// replies (pong, room acks, errors).
func (h *Hub) sendTo(c *Client, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	h.enqueueLocked(c, h.stampLocked(ev))
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	metrics.Subscribers.Set(float64(len(h.clients)))
}

// drop removes a client from the hub and every room and closes its send
// channel, stopping its write pump.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	for room, members := range h.rooms {
		if members[c] {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.close()
	metrics.Subscribers.Set(float64(len(h.clients)))
}

// joinRoom subscribes the client, enforcing that user rooms are only
// joinable by their owner.
func (h *Hub) joinRoom(c *Client, room string) bool {
	if !validRoom(room) {
		return false
	}
	if owner, ok := strings.CutPrefix(room, "user:"); ok && owner != c.UserID {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return false
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	return true
}

func (h *Hub) leaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members[c] {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func validRoom(room string) bool {
	return strings.HasPrefix(room, "bond:") || strings.HasPrefix(room, "user:")
}

// Stats reports connection and room counts for operational visibility.
func (h *Hub) Stats() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := map[string]int{
		"connections": len(h.clients),
		"rooms":       len(h.rooms),
	}
	return stats
}
