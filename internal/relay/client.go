package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer. Generous enough for any
	// SDP blob.
	maxMessageSize = 64 * 1024

	// Outbound buffer per connection. A client that cannot drain this
	// many messages is effectively dead and gets dropped.
	sendBuffer = 256
)

// Client wraps a single websocket connection. The hub addresses
// clients by ID and talks to them only through the send channel, so
// the hub never blocks on a slow socket.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan *Message

	// lastSeen is owned by the hub goroutine and refreshed on every
	// inbound message, including pings.
	lastSeen time.Time

	closeOnce sync.Once
}

// NewClient wires a freshly upgraded connection to the hub. The caller
// still has to register it and start the pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan *Message, sendBuffer),
	}
}

// enqueue hands a message to the write pump without blocking. Dropping
// on a full buffer is deliberate: the heartbeat sweep will reap the
// connection shortly after.
func (c *Client) enqueue(msg *Message) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("relay: send buffer full, dropping message", "client", c.ID, "type", msg.Type)
	}
}

// closeSend releases the write pump. Safe to call multiple times.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ReadPump pumps messages from the websocket to the hub. It runs in a
// per-connection goroutine; all reads happen here so there is at most
// one reader per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("relay: read error", "client", c.ID, "err", err)
			}
			return
		}
		msg.client = c
		c.hub.Inbound <- &msg
	}
}

// WritePump pumps messages from the hub to the websocket. It runs in a
// per-connection goroutine; all writes happen here so there is at most
// one writer per connection.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			slog.Debug("relay: write error", "client", c.ID, "err", err)
			return
		}
	}

	// The hub closed the channel: say goodbye properly.
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
