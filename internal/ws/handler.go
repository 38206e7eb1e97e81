package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tejuiceB/FractionFi/internal/common"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy belongs to the fronting layer.
		return true
	},
}

// Handler upgrades feed connections. Authentication happens upstream;
// when the fronting layer has verified a user it forwards the identity
// as the user_id query parameter, and the connection is auto-subscribed
// to that user's room. Connections without one are anonymous and may
// only join bond rooms.
func (h *Hub) Handler(writeWait time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		h.Serve(conn, r.URL.Query().Get("user_id"), writeWait)
	}
}

// Serve wires one accepted connection into the hub and starts its
// pumps under the hub's tomb.
func (h *Hub) Serve(conn Conn, userID string, writeWait time.Duration) *Client {
	client := newClient(h, conn, common.NewID(), userID, writeWait)
	h.register(client)

	h.sendTo(client, Event{Type: TypeConnected, Data: map[string]any{
		"connection_id": client.ID,
		"authenticated": userID != "",
	}})
	if userID != "" {
		h.joinRoom(client, UserRoom(userID))
	}

	h.mu.Lock()
	t := h.t
	h.mu.Unlock()
	if t == nil || !t.Alive() {
		// No running supervisor; serve the pumps unsupervised.
		go client.writePump()
		go client.readPump()
		return client
	}
	t.Go(client.writePump)
	t.Go(client.readPump)
	return client
}
