package bridge

import (
	"encoding/json"

	"github.com/dronedash/relayhub/internal/protocol"
	"github.com/dronedash/relayhub/internal/registry"
)

// worldPayload is the backend's init_world shape: parallel arrays plus a
// waiting marker when no simulation world exists yet.
type worldPayload struct {
	Action  string `json:"action"`
	Message string `json:"message"`

	MerchantNames       []string          `json:"merchant_names"`
	MerchantIDs         []json.RawMessage `json:"merchant_ids"`
	MerchantCoordinates []json.RawMessage `json:"merchant_coordinates"`
	CabinetIDs          []json.RawMessage `json:"cabinets_ids"`
	CabinetCoordinates  []json.RawMessage `json:"cabinets_coordinates"`
	DroneIDs            []json.RawMessage `json:"drone_ids"`
}

// merchant, cabinet and world are the downstream world-data shape.
type merchant struct {
	Name        string          `json:"name"`
	ID          json.RawMessage `json:"id,omitempty"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

type cabinet struct {
	ID          json.RawMessage `json:"id,omitempty"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

type world struct {
	Merchants []merchant        `json:"merchants"`
	Cabinets  []cabinet         `json:"cabinets"`
	Drones    []json.RawMessage `json:"drones"`
}

// handleEvent dispatches one backend event.
func (b *Bridge) handleEvent(ev Event) {
	switch ev.Event {
	case EventInitWorld:
		b.handleInitWorld(ev.Data)
	case EventOrderMessage:
		b.handleOrderMessage(ev.Data)
	case EventOrderStatus, EventSetOrder:
		b.handleOrderStatus(ev.Data)
	default:
		b.logger.Warn("unknown upstream event", "event", ev.Event)
	}
}

// handleInitWorld either reports the waiting state to viewers or reshapes
// the world payload into a world-data envelope. A wait marker is a defined
// protocol state, not an error.
func (b *Bridge) handleInitWorld(data json.RawMessage) {
	var wp worldPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &wp); err != nil {
			b.logger.Warn("malformed init_world payload", "error", err)
			return
		}
	}

	if wp.Action == "wait" || len(wp.MerchantNames) == 0 {
		b.logger.Info("simulation world not ready", "message", wp.Message)

		out, err := encodeEnvelope(protocol.TypeWorldStatus, map[string]string{
			"status": "waiting",
		})
		if err != nil {
			b.logger.Error("encode world-status", "error", err)
			return
		}
		b.local.Broadcast("", registry.RoleIn(registry.RoleViewer), payload(out))
		return
	}

	out, err := encodeEnvelope(protocol.TypeWorldData, reshapeWorld(wp))
	if err != nil {
		b.logger.Error("encode world-data", "error", err)
		return
	}
	n := b.local.Broadcast("", registry.RoleIn(registry.RoleViewer), payload(out))
	b.logger.Info("world data broadcast",
		"merchants", len(wp.MerchantNames),
		"viewers", n,
	)
}

// reshapeWorld zips the backend's parallel arrays into keyed records.
// Shorter ID or coordinate arrays leave the missing fields empty.
func reshapeWorld(wp worldPayload) world {
	w := world{
		Merchants: make([]merchant, len(wp.MerchantNames)),
		Cabinets:  make([]cabinet, len(wp.CabinetIDs)),
		Drones:    wp.DroneIDs,
	}
	if w.Drones == nil {
		w.Drones = []json.RawMessage{}
	}

	for i, name := range wp.MerchantNames {
		m := merchant{Name: name}
		if i < len(wp.MerchantIDs) {
			m.ID = wp.MerchantIDs[i]
		}
		if i < len(wp.MerchantCoordinates) {
			m.Coordinates = wp.MerchantCoordinates[i]
		}
		w.Merchants[i] = m
	}

	for i, id := range wp.CabinetIDs {
		c := cabinet{ID: id}
		if i < len(wp.CabinetCoordinates) {
			c.Coordinates = wp.CabinetCoordinates[i]
		}
		w.Cabinets[i] = c
	}

	return w
}

// handleOrderMessage forwards a backend order feed event to viewers and
// monitors as a remote-order envelope.
func (b *Bridge) handleOrderMessage(data json.RawMessage) {
	out, err := encodeEnvelope(protocol.TypeRemoteOrder, normalize(data))
	if err != nil {
		b.logger.Error("encode remote-order", "error", err)
		return
	}
	b.local.Broadcast("", registry.RoleIn(registry.RoleViewer, registry.RoleMonitor), payload(out))
}

// handleOrderStatus forwards a backend status event to viewers and monitors,
// plus a direct copy to the original submitter when the order is one of ours
// and the submitter would not be covered by the broadcast.
func (b *Bridge) handleOrderStatus(data json.RawMessage) {
	out, err := encodeEnvelope(protocol.TypeOrderStatus, normalize(data))
	if err != nil {
		b.logger.Error("encode order-status", "error", err)
		return
	}
	b.local.Broadcast("", registry.RoleIn(registry.RoleViewer, registry.RoleMonitor), payload(out))

	orderID := extractOrderID(data)
	if orderID == "" {
		return
	}
	p, ok := b.pending.Get(orderID)
	if !ok {
		return
	}
	b.pending.Remove(orderID)

	conn, ok := b.reg.Get(p.ConnID)
	if !ok {
		return
	}
	role := b.reg.Role(p.ConnID)
	if role == registry.RoleViewer || role == registry.RoleMonitor {
		return // already covered by the broadcast
	}
	if err := conn.TrySend(out); err != nil {
		b.logger.Warn("order status delivery to submitter failed",
			"order_id", orderID,
			"conn_id", p.ConnID,
			"error", err,
		)
	}
}

// normalize maps an absent payload to JSON null so re-marshalling is safe.
func normalize(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return data
}

// extractOrderID pulls an order identifier from a status payload, accepting
// both backend and downstream field spellings.
func extractOrderID(data json.RawMessage) string {
	var fields struct {
		OrderID   string `json:"order_id"`
		OrderIDJS string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}
	if fields.OrderID != "" {
		return fields.OrderID
	}
	return fields.OrderIDJS
}
