package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dronedash/relayhub/internal/protocol"
	"github.com/dronedash/relayhub/internal/registry"
)

// Config holds hub settings.
type Config struct {
	// SendBufferSize is the per-client outbound queue depth.
	SendBufferSize int

	WriteTimeout time.Duration
	PongWait     time.Duration

	// MaxFrameBytes bounds one inbound frame (video frames dominate).
	MaxFrameBytes int64
}

// DefaultConfig returns default hub settings.
func DefaultConfig() Config {
	return Config{
		SendBufferSize: 64,
		WriteTimeout:   10 * time.Second,
		PongWait:       60 * time.Second,
		MaxFrameBytes:  1 << 20,
	}
}

// Upstream is the bridge surface the dispatcher needs. Nil upstream puts the
// hub in pure local relay mode.
type Upstream interface {
	// Connected reports whether the backend link is currently up.
	Connected() bool

	// SubmitOrder forwards an order payload from senderID to the backend.
	SubmitOrder(senderID string, data json.RawMessage) error
}

// Stats contains runtime dispatch counters.
type Stats struct {
	Received      int64
	ParseErrors   int64
	Unknown       int64
	Delivered     int64
	SendErrors    int64
	FramesRelayed int64
}

// Hub accepts downstream connections and routes envelopes among them by role.
type Hub struct {
	cfg      Config
	reg      *registry.Registry
	logger   *slog.Logger
	upstream Upstream

	upgrader websocket.Upgrader

	mu    sync.Mutex
	stats Stats
}

// New creates a Hub over the given registry.
func New(cfg Config, reg *registry.Registry, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		cfg:    cfg,
		reg:    reg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboards are served from other origins; CORS policy is
			// permissive by contract.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetUpstream wires the bridge in. Called once during startup, before the
// listener accepts connections.
func (h *Hub) SetUpstream(u Upstream) {
	h.upstream = u
}

// ServeHTTP upgrades the request to a websocket connection and serves the
// peer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader has already written the error response.
		return
	}

	c := &client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBufferSize),
		closed: make(chan struct{}),
	}
	h.reg.Register(c)

	h.logger.Info("client connected",
		"conn_id", c.id,
		"remote", conn.RemoteAddr().String(),
		"total", h.reg.Len(),
	)

	go c.writePump()
	c.readPump() // blocks until the connection closes

	h.logger.Info("client disconnected",
		"conn_id", c.id,
		"role", string(c.lastRole),
		"remaining", h.reg.Len(),
	)
}

// Broadcast fans one logical event out to every writable connection whose
// role satisfies pred, excluding senderID. build runs once per recipient and
// may personalize the payload. A failed recipient is torn down; delivery to
// the rest continues. Returns the number of successful sends.
func (h *Hub) Broadcast(senderID string, pred func(registry.Role) bool, build func() ([]byte, error)) int {
	delivered := 0
	h.reg.ForEach(pred, func(conn registry.Conn) {
		if conn.ID() == senderID {
			return
		}

		data, err := build()
		if err != nil {
			h.logger.Error("build broadcast payload", "error", err)
			return
		}

		if err := conn.TrySend(data); err != nil {
			h.logger.Warn("broadcast send failed, dropping recipient",
				"conn_id", conn.ID(),
				"error", err,
			)
			h.drop(conn)
			h.bump(func(s *Stats) { s.SendErrors++ })
			return
		}
		delivered++
	})

	h.bump(func(s *Stats) { s.Delivered += int64(delivered) })
	return delivered
}

// Stats returns a snapshot of the dispatch counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// drop tears down a recipient that failed a send.
func (h *Hub) drop(conn registry.Conn) {
	h.reg.Unregister(conn.ID())
	if c, ok := conn.(*client); ok {
		c.teardown()
	}
}

func (h *Hub) bump(fn func(*Stats)) {
	h.mu.Lock()
	fn(&h.stats)
	h.mu.Unlock()
}

// staticPayload adapts a prebuilt frame to the Broadcast builder contract.
func staticPayload(data []byte) func() ([]byte, error) {
	return func() ([]byte, error) { return data, nil }
}

// encodeEnvelope builds a new envelope and serializes it.
func encodeEnvelope(t protocol.Type, data any) ([]byte, error) {
	env, err := protocol.New(t, data)
	if err != nil {
		return nil, err
	}
	return env.Encode()
}
