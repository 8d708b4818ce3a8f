package ws

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const sseWriteTimeout = 10 * time.Second

// SSEClient streams named Server-Sent Events over an HTTP response writer.
type SSEClient struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	ctrl    *http.ResponseController
	log     *slog.Logger
	closed  bool
	last    time.Time
}

// NewSSEClient builds an SSE client instance.
func NewSSEClient(writer io.Writer, flusher http.Flusher, logger *slog.Logger) *SSEClient {
	c := &SSEClient{writer: writer, flusher: flusher, log: logger, last: time.Now().UTC()}
	if rw, ok := writer.(http.ResponseWriter); ok {
		c.ctrl = http.NewResponseController(rw)
	}
	return c
}

// SendEvent emits a named event frame to the SSE stream.
func (c *SSEClient) SendEvent(event string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	c.setWriteDeadline()
	if _, err := fmt.Fprintf(c.writer, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		c.closed = true
		if c.log != nil {
			c.log.Warn("sse send failed", "event", event, "error", err)
		}
		return err
	}
	c.flusher.Flush()
	c.last = time.Now().UTC()
	return nil
}

// Heartbeat emits a comment frame to keep the connection alive.
func (c *SSEClient) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	c.setWriteDeadline()
	if _, err := fmt.Fprint(c.writer, ": ping\n\n"); err != nil {
		c.closed = true
		if c.log != nil {
			c.log.Warn("sse heartbeat failed", "error", err)
		}
		return err
	}
	c.flusher.Flush()
	c.last = time.Now().UTC()
	return nil
}

// setWriteDeadline bounds the next write so one stalled consumer cannot
// pin a broadcast. Writers without deadline support are left as-is.
func (c *SSEClient) setWriteDeadline() {
	if c.ctrl != nil {
		_ = c.ctrl.SetWriteDeadline(time.Now().Add(sseWriteTimeout))
	}
}

// Close marks the stream as closed. No further events are sent.
func (c *SSEClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// LastActivity reports the timestamp of the most recent successful write.
func (c *SSEClient) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
