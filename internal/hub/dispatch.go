package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dronedash/relayhub/internal/protocol"
	"github.com/dronedash/relayhub/internal/registry"
)

// dispatch parses an inbound frame and routes it by type. Parse failures are
// logged and dropped; the connection stays open.
func (h *Hub) dispatch(c *client, raw []byte) {
	h.bump(func(s *Stats) { s.Received++ })

	env, err := protocol.Parse(raw)
	if err != nil {
		h.logger.Warn("dropping unparseable frame",
			"conn_id", c.id,
			"error", err,
		)
		h.bump(func(s *Stats) { s.ParseErrors++ })
		return
	}

	switch env.Type {
	case protocol.TypeClientReady:
		h.handleClientReady(c, env)
	case protocol.TypeChatMessage:
		h.handleChat(c, env)
	case protocol.TypeOrderSubmit:
		h.handleOrderSubmit(c, env)
	case protocol.TypeDashboardData:
		// Verbatim pass-through to dashboards.
		h.Broadcast(c.id, registry.RoleIn(registry.RoleViewer), staticPayload(raw))
	case protocol.TypeVideoFrame:
		h.RelayFrame(c.id, raw)
	default:
		h.logger.Warn("unknown message type",
			"conn_id", c.id,
			"type", string(env.Type),
		)
		h.bump(func(s *Stats) { s.Unknown++ })
	}
}

// handleClientReady declares the connection's role. Unrecognized types
// leave the role untouched.
func (h *Hub) handleClientReady(c *client, env protocol.Envelope) {
	role, ok := registry.ParseRole(env.ClientType)
	if !ok {
		h.logger.Warn("client declared unrecognized type",
			"conn_id", c.id,
			"client_type", env.ClientType,
		)
		return
	}

	h.reg.SetRole(c.id, role)
	h.logger.Info("client role declared",
		"conn_id", c.id,
		"role", string(role),
	)
}

// handleChat enriches the chat payload with a processed flag and server
// timestamp, then fans it out to viewers and monitors. The sender's original
// envelope is never mutated; enrichment builds a fresh one.
func (h *Hub) handleChat(c *client, env protocol.Envelope) {
	payload := decodeObject(env.Data)
	payload["processed"] = true
	payload["serverTime"] = time.Now().UTC().Format(time.RFC3339)

	data, err := encodeEnvelope(protocol.TypeChatMessage, payload)
	if err != nil {
		h.logger.Error("encode chat broadcast", "conn_id", c.id, "error", err)
		return
	}

	h.Broadcast(c.id, registry.RoleIn(registry.RoleViewer, registry.RoleMonitor), staticPayload(data))
}

// handleOrderSubmit routes an order by mode. Bridged mode forwards upstream
// and leaves confirmation to the backend; local mode echoes a confirmation to
// the submitter and notifies restaurants and monitors.
func (h *Hub) handleOrderSubmit(c *client, env protocol.Envelope) {
	if h.upstream != nil {
		if err := h.upstream.SubmitOrder(c.id, env.Data); err != nil {
			h.logger.Warn("order dropped, upstream unavailable",
				"conn_id", c.id,
				"error", err,
			)
		}
		return
	}

	now := time.Now()
	status := decodeObject(env.Data)
	status["orderId"] = fmt.Sprintf("ORD%d", now.UnixMilli())
	status["status"] = "received"
	status["receivedTime"] = now.UTC().Format(time.RFC3339)

	confirmation, err := encodeEnvelope(protocol.TypeOrderConfirmation, status)
	if err != nil {
		h.logger.Error("encode order confirmation", "conn_id", c.id, "error", err)
		return
	}
	if err := c.TrySend(confirmation); err != nil {
		h.logger.Warn("order confirmation send failed",
			"conn_id", c.id,
			"error", err,
		)
	}

	notice, err := encodeEnvelope(protocol.TypeOrderStatus, status)
	if err != nil {
		h.logger.Error("encode order status", "conn_id", c.id, "error", err)
		return
	}
	h.Broadcast(c.id, registry.RoleIn(registry.RoleRestaurant, registry.RoleMonitor), staticPayload(notice))
}

// decodeObject unmarshals an envelope payload into a mutable map, tolerating
// absent or non-object payloads.
func decodeObject(data json.RawMessage) map[string]any {
	obj := map[string]any{}
	if len(data) > 0 {
		// A non-object payload leaves obj empty; deep validation is out
		// of scope for the relay.
		json.Unmarshal(data, &obj)
	}
	return obj
}
