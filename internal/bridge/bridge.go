package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dronedash/relayhub/internal/protocol"
	"github.com/dronedash/relayhub/internal/registry"
)

// Broadcaster is the local fan-out surface the bridge pushes translated
// events into. The hub implements it.
type Broadcaster interface {
	Broadcast(senderID string, pred func(registry.Role) bool, build func() ([]byte, error)) int
}

// pendingOrder tracks a locally submitted order awaiting backend status.
type pendingOrder struct {
	ConnID      string
	SubmittedAt time.Time
}

// Bridge maintains the backend link and translates events in both
// directions.
type Bridge struct {
	cfg    Config
	logger *slog.Logger
	local  Broadcaster
	reg    *registry.Registry

	// In-flight orders, keyed by minted order ID. Bounded so abandoned
	// orders age out instead of leaking.
	pending *lru.Cache[string, pendingOrder]

	mu      sync.Mutex
	phase   Phase
	attempt int
	lastErr error
	cur     *client

	rearm chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Bridge. local receives every translated backend event; reg
// is consulted to route order status back to submitters.
func New(cfg Config, local Broadcaster, reg *registry.Registry, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PendingOrders < 1 {
		cfg.PendingOrders = DefaultConfig().PendingOrders
	}

	pending, err := lru.New[string, pendingOrder](cfg.PendingOrders)
	if err != nil {
		return nil, fmt.Errorf("create pending order cache: %w", err)
	}

	return &Bridge{
		cfg:     cfg,
		logger:  logger,
		local:   local,
		reg:     reg,
		pending: pending,
		phase:   PhaseDisconnected,
		rearm:   make(chan struct{}, 1),
	}, nil
}

// Start launches the bridge goroutine.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.run()

	b.logger.Info("upstream bridge started",
		"url", b.cfg.URL,
		"max_attempts", b.cfg.MaxAttempts,
		"reconnect_delay", b.cfg.ReconnectDelay,
	)
	return nil
}

// Stop shuts the bridge down, waiting up to ctx for the goroutine to exit.
func (b *Bridge) Stop(ctx context.Context) error {
	b.logger.Info("stopping upstream bridge")

	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("bridge shutdown timeout")
	}

	b.mu.Lock()
	cur := b.cur
	b.mu.Unlock()
	if cur != nil {
		cur.close()
	}

	b.logger.Info("upstream bridge stopped")
	return nil
}

// State returns a snapshot of the link state machine.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{Phase: b.phase, Attempt: b.attempt, LastErr: b.lastErr}
}

// Connected reports whether the backend link is up.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase == PhaseConnected
}

// Rearm resets the attempt budget and wakes the bridge out of the terminal
// failed phase. The reset applies even if the trigger fires while a cycle is
// still in flight.
func (b *Bridge) Rearm() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()

	select {
	case b.rearm <- struct{}{}:
	default:
	}
}

// SubmitOrder mints a local order ID and submission timestamp, records the
// submitter, and forwards the order upstream. Delivery is best-effort; the
// backend's later order_status is the confirmation.
func (b *Bridge) SubmitOrder(senderID string, data json.RawMessage) error {
	b.mu.Lock()
	cur := b.cur
	connected := b.phase == PhaseConnected
	b.mu.Unlock()

	if !connected || cur == nil {
		return ErrUpstreamDown
	}

	now := time.Now()
	orderID := fmt.Sprintf("ORD%d", now.UnixMilli())

	order := map[string]any{}
	if len(data) > 0 {
		json.Unmarshal(data, &order)
	}
	order["order_id"] = orderID
	order["submitted_at"] = now.UnixMilli()

	b.pending.Add(orderID, pendingOrder{ConnID: senderID, SubmittedAt: now})

	if err := cur.emit(EventSetOrder, order); err != nil {
		b.pending.Remove(orderID)
		return fmt.Errorf("forward order upstream: %w", err)
	}

	b.logger.Info("order forwarded upstream",
		"order_id", orderID,
		"conn_id", senderID,
	)
	return nil
}

// run is the bridge goroutine: connect cycles separated by terminal failed
// phases that only Rearm leaves.
func (b *Bridge) run() {
	defer b.wg.Done()

	for {
		if !b.connectCycle() {
			return // context cancelled
		}

		// Budget exhausted. Hold in failed until an external trigger.
		select {
		case <-b.ctx.Done():
			return
		case <-b.rearm:
			b.logger.Info("upstream bridge rearmed")
			b.setPhase(PhaseDisconnected)
		}
	}
}

// connectCycle connects, serves, and reconnects with a fixed delay until the
// attempt budget is exhausted (returns true, phase failed) or the context is
// cancelled (returns false).
func (b *Bridge) connectCycle() bool {
	for {
		select {
		case <-b.ctx.Done():
			return false
		default:
		}

		b.setPhase(PhaseConnecting)

		cl := newClient(b.cfg.URL, b.cfg.DialTimeout, b.logger)
		if err := cl.connect(b.ctx); err != nil {
			attempt := b.recordFailure(err)
			b.logger.Warn("upstream connect failed",
				"attempt", attempt,
				"max_attempts", b.cfg.MaxAttempts,
				"error", err,
			)

			if attempt >= b.cfg.MaxAttempts {
				b.setPhase(PhaseFailed)
				b.broadcastServerStatus(false)
				b.logger.Error("upstream retry budget exhausted",
					"attempts", attempt,
				)
				return true
			}

			b.setPhase(PhaseBackingOff)
			select {
			case <-b.ctx.Done():
				return false
			case <-time.After(b.cfg.ReconnectDelay):
			}
			continue
		}

		b.onConnected(cl)

		err := b.serve(cl)
		cl.close()

		b.mu.Lock()
		b.cur = nil
		b.mu.Unlock()

		if b.ctx.Err() != nil {
			return false
		}

		b.logger.Warn("upstream connection lost", "error", err)
		b.setPhase(PhaseDisconnected)
		b.broadcastServerStatus(false)

		select {
		case <-b.ctx.Done():
			return false
		case <-time.After(b.cfg.ReconnectDelay):
		}
	}
}

// onConnected enters the connected phase: reset the attempt counter, send
// the identity announcement and world synchronization request, and notify
// local clients.
func (b *Bridge) onConnected(cl *client) {
	b.mu.Lock()
	b.phase = PhaseConnected
	b.attempt = 0
	b.lastErr = nil
	b.cur = cl
	b.mu.Unlock()

	b.logger.Info("upstream connected", "url", b.cfg.URL)

	if err := cl.emit(EventInitClient, map[string]string{"client_type": "web"}); err != nil {
		b.logger.Warn("init_client send failed", "error", err)
	}
	if err := cl.emit(EventInitWorld, map[string]string{
		"client_type": "web",
		"action":      "synchronize",
	}); err != nil {
		b.logger.Warn("init_world send failed", "error", err)
	}

	b.broadcastServerStatus(true)
}

// serve pumps backend events until the link errors or the context ends.
func (b *Bridge) serve(cl *client) error {
	for {
		select {
		case <-b.ctx.Done():
			return nil
		case err := <-cl.errors:
			return err
		case ev := <-cl.events:
			b.handleEvent(ev)
		}
	}
}

func (b *Bridge) setPhase(p Phase) {
	b.mu.Lock()
	b.phase = p
	b.mu.Unlock()
}

func (b *Bridge) recordFailure(err error) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt++
	b.lastErr = err
	return b.attempt
}

// broadcastServerStatus tells every local connection about upstream
// availability.
func (b *Bridge) broadcastServerStatus(connected bool) {
	data, err := encodeEnvelope(protocol.TypeServerStatus, map[string]bool{
		"remoteServerConnected": connected,
	})
	if err != nil {
		b.logger.Error("encode server-status", "error", err)
		return
	}
	b.local.Broadcast("", registry.Any, payload(data))
}

// payload adapts a prebuilt frame to the Broadcast builder contract.
func payload(data []byte) func() ([]byte, error) {
	return func() ([]byte, error) { return data, nil }
}

// encodeEnvelope builds a new downstream envelope and serializes it.
func encodeEnvelope(t protocol.Type, data any) ([]byte, error) {
	env, err := protocol.New(t, data)
	if err != nil {
		return nil, err
	}
	return env.Encode()
}
