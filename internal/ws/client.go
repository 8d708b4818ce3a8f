package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const clientWriteTimeout = 10 * time.Second

// Client represents a websocket subscriber. Events are wrapped in a JSON
// envelope so the browser side sees the same event names as SSE consumers.
// The connection allows only one concurrent writer, so sends are serialized:
// the session loop and the alert fan-out may push on different goroutines.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *slog.Logger
}

// NewClient constructs a client wrapper.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger}
}

type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SendEvent writes a named event to the websocket connection.
func (c *Client) SendEvent(event string, payload []byte) error {
	frame, err := json.Marshal(wsEnvelope{Event: event, Data: payload})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if c.log != nil {
			c.log.Warn("websocket send failed", "event", event, "error", err)
		}
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}
