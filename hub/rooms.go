package hub

import (
	"log/slog"

	"github.com/samber/lo"

	"livepoll-server/domain"
)

// router tracks poll room membership in both directions so a closed
// connection can be removed from every room it joined.
type router struct {
	rooms       map[string]map[string]struct{}
	memberships map[string]map[string]struct{}
}

func newRouter() *router {
	return &router{
		rooms:       make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
	}
}

func (r *router) join(connID, roomID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	if _, joined := members[connID]; joined {
		return false
	}
	members[connID] = struct{}{}

	joined, ok := r.memberships[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[connID] = joined
	}
	joined[roomID] = struct{}{}
	return true
}

func (r *router) leave(connID, roomID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, joined := members[connID]; !joined {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	joined := r.memberships[connID]
	delete(joined, roomID)
	if len(joined) == 0 {
		delete(r.memberships, connID)
	}
	return true
}

// leaveAll removes connID from every room and returns the rooms it left.
func (r *router) leaveAll(connID string) []string {
	left := lo.Keys(r.memberships[connID])
	for _, roomID := range left {
		r.leave(connID, roomID)
	}
	return left
}

func (r *router) members(roomID string) []string {
	return lo.Keys(r.rooms[roomID])
}

func (r *router) roomsOf(connID string) []string {
	return lo.Keys(r.memberships[connID])
}

func (r *router) count() int {
	return len(r.rooms)
}

// JoinRoom adds conn to the poll room. Joining twice is a no-op.
func (h *Hub) JoinRoom(conn domain.Connection, roomID string) {
	if roomID == "" {
		return
	}
	h.do(func() {
		if _, ok := h.conns[conn.ID()]; !ok {
			return
		}
		if h.rooms.join(conn.ID(), roomID) {
			slog.Info("joined poll room", "clientId", conn.ID(), "room", roomID)
		}
	})
}

// LeaveRoom removes conn from the poll room. Leaving a room never joined is a no-op.
func (h *Hub) LeaveRoom(conn domain.Connection, roomID string) {
	if roomID == "" {
		return
	}
	h.do(func() {
		if h.rooms.leave(conn.ID(), roomID) {
			slog.Info("left poll room", "clientId", conn.ID(), "room", roomID)
		}
	})
}
