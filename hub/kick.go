package hub

import (
	"log/slog"

	"livepoll-server/domain"
)

// Kick removes every connection announced under studentID. Each live
// connection is sent a kicked event before it is closed. The roster is
// broadcast once afterwards, even when nothing matched.
func (h *Hub) Kick(studentID string) {
	if studentID == "" {
		return
	}
	h.do(func() {
		for _, connID := range h.presence.connsFor(studentID) {
			if conn, ok := h.conns[connID]; ok {
				h.emitTo(conn, domain.EventKicked, nil)
				if err := conn.Close(); err != nil {
					slog.Warn("close kicked connection", "clientId", connID, "error", err)
				}
				h.drop(connID)
			}
			h.presence.remove(connID)
		}
		slog.Info("kick requested", "studentId", studentID)
		h.broadcastRoster()
	})
}
