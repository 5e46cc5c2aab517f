package bridge

import (
	"encoding/json"
	"errors"
	"time"
)

// Phase is one state of the upstream link machine. Transitions happen only
// on the bridge's own goroutine, so tests can observe them without races.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseBackingOff   Phase = "backing_off"

	// PhaseFailed is terminal until Rearm is called.
	PhaseFailed Phase = "failed"
)

// State is a snapshot of the upstream link.
type State struct {
	Phase   Phase
	Attempt int
	LastErr error
}

// Backend event names. These belong to the backend protocol namespace, not
// the downstream envelope vocabulary; the bridge translates between the two.
const (
	EventInitClient   = "init_client"
	EventInitWorld    = "init_world"
	EventOrderMessage = "order_message"
	EventOrderStatus  = "order_status"
	EventSetOrder     = "set_order"
)

// Event is one frame on the backend link.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Config holds bridge settings.
type Config struct {
	URL string

	DialTimeout    time.Duration
	ReconnectDelay time.Duration
	MaxAttempts    int

	// PendingOrders caps the in-flight order cache.
	PendingOrders int
}

// DefaultConfig returns default bridge settings.
func DefaultConfig() Config {
	return Config{
		DialTimeout:    10 * time.Second,
		ReconnectDelay: 3 * time.Second,
		MaxAttempts:    5,
		PendingOrders:  256,
	}
}

var (
	// ErrUpstreamDown is returned by SubmitOrder while the backend link is
	// not in the connected phase.
	ErrUpstreamDown = errors.New("upstream link down")

	// ErrNotConnected is returned when sending on an unconnected client.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyClosed is returned when connecting a closed client.
	ErrAlreadyClosed = errors.New("client already closed")
)
