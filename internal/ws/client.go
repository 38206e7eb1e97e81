package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a frame before the subscriber is evicted.
	defaultWriteWait = 10 * time.Second

	// Maximum inbound frame size; clients only send small control
	// frames.
	maxMessageSize = 1024

	// Outbound buffer per subscriber. Filling it up counts as stalling.
	sendBufferSize = 256
)

// Conn is the slice of *websocket.Conn the client needs. Tests swap in
// an in-process pipe.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// textMessage mirrors websocket.TextMessage without importing gorilla
// here, keeping Conn implementable by test doubles.
const textMessage = 1

// Client is one feed subscriber: the connection, its identity (empty
// for unauthenticated connects) and its outbound buffer.
type Client struct {
	ID     string
	UserID string

	hub       *Hub
	conn      Conn
	send      chan []byte
	writeWait time.Duration

	closeOnce sync.Once
}

func newClient(hub *Hub, conn Conn, connectionID, userID string, writeWait time.Duration) *Client {
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	return &Client{
		ID:        connectionID,
		UserID:    userID,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		writeWait: writeWait,
	}
}

// close stops the client's pumps: the closed send channel ends the
// write pump once drained, and closing the connection unblocks any
// in-flight read or write.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// writePump drains the send buffer onto the connection. Any write error
// or timeout evicts the subscriber; a closed send channel means the hub
// already dropped it.
func (c *Client) writePump() error {
	defer c.conn.Close()
	for frame := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
			c.hub.drop(c)
			return nil
		}
		if err := c.conn.WriteMessage(textMessage, frame); err != nil {
			log.Debug().Err(err).Str("connection", c.ID).Msg("write failed, dropping subscriber")
			c.hub.drop(c)
			return nil
		}
	}
	return nil
}

// readPump handles the inbound control frames: join_room, leave_room
// and ping. It exits, dropping the client, when the connection dies.
func (c *Client) readPump() error {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.sendTo(c, Event{Type: TypeError, Data: map[string]any{"message": "invalid JSON frame"}})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg inbound) {
	switch msg.Type {
	case typeJoinRoom:
		if c.hub.joinRoom(c, msg.Room) {
			c.hub.sendTo(c, Event{Type: TypeRoomJoined, Data: map[string]any{"room": msg.Room}})
		} else {
			c.hub.sendTo(c, Event{Type: TypeError, Data: map[string]any{"message": "cannot join room " + msg.Room}})
		}
	case typeLeaveRoom:
		c.hub.leaveRoom(c, msg.Room)
		c.hub.sendTo(c, Event{Type: TypeRoomLeft, Data: map[string]any{"room": msg.Room}})
	case typePing:
		c.hub.sendTo(c, Event{Type: TypePong, Data: map[string]any{"timestamp": msg.Timestamp}})
	default:
		c.hub.sendTo(c, Event{Type: TypeError, Data: map[string]any{"message": "unknown frame type"}})
	}
}
