package protocol

import (
	"encoding/json"
	"log/slog"

	"livepoll-server/domain"
)

type Handler struct {
	coordinator domain.Coordinator
}

func NewHandler(c domain.Coordinator) *Handler {
	return &Handler{coordinator: c}
}

// Handle decodes one inbound frame and dispatches it. Malformed frames are
// dropped without a reply.
func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("invalid message", "clientId", conn.ID(), "error", err)
		return
	}

	switch env.Event {
	case domain.EventJoinPoll:
		var roomID string
		if decode(conn, env, &roomID) {
			h.coordinator.JoinRoom(conn, roomID)
		}
	case domain.EventLeavePoll:
		var roomID string
		if decode(conn, env, &roomID) {
			h.coordinator.LeaveRoom(conn, roomID)
		}
	case domain.EventStudentJoin:
		var p domain.Participant
		if decode(conn, env, &p) {
			h.coordinator.Announce(conn, p)
		}
	case domain.EventStudentLeave:
		h.coordinator.Depart(conn)
	case domain.EventKickStudent:
		var req domain.KickRequest
		if decode(conn, env, &req) {
			h.coordinator.Kick(req.StudentID)
		}
	case domain.EventChatMessage:
		var msg domain.ChatMessage
		if decode(conn, env, &msg) {
			h.coordinator.Relay(msg)
		}
	default:
		slog.Warn("unknown event", "clientId", conn.ID(), "event", env.Event)
	}
}

func decode(conn domain.Connection, env domain.Envelope, v any) bool {
	if len(env.Data) == 0 {
		return false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		slog.Warn("invalid payload", "clientId", conn.ID(), "event", env.Event, "error", err)
		return false
	}
	return true
}
