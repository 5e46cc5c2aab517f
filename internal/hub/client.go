package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dronedash/relayhub/internal/registry"
)

var (
	// ErrClientClosed is returned by TrySend after the connection has been
	// torn down.
	ErrClientClosed = errors.New("client connection closed")

	// ErrSlowConsumer is returned by TrySend when the client's outbound
	// queue is full. The caller treats the client as unhealthy.
	ErrSlowConsumer = errors.New("client send queue full")
)

// client is one downstream websocket connection. Writes go through the send
// queue and a single writer goroutine, so broadcast callers never interleave
// bytes on the wire.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	// lastRole is the role held at teardown time, kept for the disconnect
	// log after the registry entry is gone. Written once inside closeOnce.
	lastRole registry.Role
}

func (c *client) ID() string { return c.id }

// Writable reports whether the connection still accepts queued sends.
func (c *client) Writable() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// TrySend queues data without blocking. The send queue is never closed; the
// writer goroutine stops draining it once the closed signal fires.
func (c *client) TrySend(data []byte) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return ErrClientClosed
	default:
		return ErrSlowConsumer
	}
}

// teardown removes the client from the registry and closes the transport.
// Idempotent: the read pump, write pump, and broadcast error paths all call
// it on their own schedule.
func (c *client) teardown() {
	c.closeOnce.Do(func() {
		c.lastRole = c.hub.reg.Role(c.id)
		close(c.closed)
		c.hub.reg.Unregister(c.id)
		c.conn.Close()
	})
}

// readPump reads frames from the peer and hands them to the dispatcher.
// Blocks until the connection dies, then tears the client down.
func (c *client) readPump() {
	defer c.teardown()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// Any inbound frame counts as liveness.
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		c.hub.dispatch(c, raw)
	}
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with periodic pings. Runs in its own goroutine per client.
func (c *client) writePump() {
	cfg := c.hub.cfg
	pingPeriod := cfg.PongWait * 9 / 10

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
