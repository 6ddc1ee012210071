package hub

import (
	"livepoll-server/domain"
)

// ISO-8601 in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Relay stamps msg when the sender gave no timestamp and sends it to every
// connection. Messages without text or sender name are dropped.
func (h *Hub) Relay(msg domain.ChatMessage) {
	if msg.Message == "" || msg.SenderName == "" {
		return
	}
	h.do(func() {
		if msg.Timestamp == "" {
			msg.Timestamp = h.now().UTC().Format(timestampLayout)
		}
		h.emitAll(domain.EventChatMessage, msg)
	})
}
