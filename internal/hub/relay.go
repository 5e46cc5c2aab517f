package hub

import "github.com/dronedash/relayhub/internal/registry"

// RelayFrame forwards a raw video-frame envelope from senderID to every
// viewer. Frames arrive at high rate with large payloads, so this path stays
// separate from the general broadcast router: no builder indirection, one
// independent non-blocking send per recipient, and a slow viewer is dropped
// without stalling the rest.
//
// Frames from a connection not declared as sender are dropped silently.
// Returns the number of viewers the frame was queued for.
func (h *Hub) RelayFrame(senderID string, raw []byte) int {
	if h.reg.Role(senderID) != registry.RoleSender {
		return 0
	}

	relayed := 0
	h.reg.ForEach(registry.RoleIn(registry.RoleViewer), func(conn registry.Conn) {
		if conn.ID() == senderID {
			return
		}
		if err := conn.TrySend(raw); err != nil {
			h.logger.Warn("frame relay send failed, dropping viewer",
				"conn_id", conn.ID(),
				"error", err,
			)
			h.drop(conn)
			h.bump(func(s *Stats) { s.SendErrors++ })
			return
		}
		relayed++
	})

	h.bump(func(s *Stats) { s.FramesRelayed += int64(relayed) })
	return relayed
}
