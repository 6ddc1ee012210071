package hub

import (
	"context"
	"log/slog"
	"time"

	"livepoll-server/domain"
)

const (
	opsBuffer    = 256
	storeTimeout = 10 * time.Second
)

// Hub is the session coordinator. All state is owned by the goroutine
// running Run; public methods hand their work to that goroutine.
type Hub struct {
	store domain.PollStore
	now   func() time.Time

	ops  chan func()
	done chan struct{}

	conns     map[string]domain.Connection
	rooms     *router
	presence  *directory
	scheduler *scheduler
}

var _ domain.Coordinator = (*Hub)(nil)

type Stats struct {
	Connections  int  `json:"connections"`
	Participants int  `json:"participants"`
	Rooms        int  `json:"rooms"`
	PollRunning  bool `json:"pollRunning"`
}

func New(store domain.PollStore) *Hub {
	return &Hub{
		store:     store,
		now:       time.Now,
		ops:       make(chan func(), opsBuffer),
		done:      make(chan struct{}),
		conns:     make(map[string]domain.Connection),
		rooms:     newRouter(),
		presence:  newDirectory(),
		scheduler: &scheduler{},
	}
}

// Run processes operations one at a time until ctx is cancelled. On exit
// the poll timer is stopped and every registered connection is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case op := <-h.ops:
			op()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) shutdown() {
	h.scheduler.stop()
	for id, conn := range h.conns {
		if err := conn.Close(); err != nil {
			slog.Warn("close connection on shutdown", "clientId", id, "error", err)
		}
		delete(h.conns, id)
	}
	slog.Info("coordinator stopped")
}

// do runs op on the loop and waits for it. Dropped once the loop has stopped.
// Must not be called from inside the loop.
func (h *Hub) do(op func()) {
	finished := make(chan struct{})
	select {
	case h.ops <- func() {
		defer close(finished)
		op()
	}:
	case <-h.done:
		return
	}
	select {
	case <-finished:
	case <-h.done:
	}
}

// post queues op without waiting. Used by timers and store callbacks.
func (h *Hub) post(op func()) {
	select {
	case h.ops <- op:
	case <-h.done:
	}
}

func (h *Hub) Register(conn domain.Connection) {
	h.do(func() {
		h.conns[conn.ID()] = conn
		slog.Info("client connected", "clientId", conn.ID(), "clients", len(h.conns))
	})
}

// Disconnect handles transport-level connection loss: implicit depart,
// room cleanup and removal from the registry.
func (h *Hub) Disconnect(conn domain.Connection) {
	h.do(func() {
		h.depart(conn.ID())
		h.drop(conn.ID())
		slog.Info("client disconnected", "clientId", conn.ID(), "clients", len(h.conns))
	})
}

func (h *Hub) drop(connID string) {
	for _, roomID := range h.rooms.leaveAll(connID) {
		slog.Debug("left poll room on disconnect", "clientId", connID, "room", roomID)
	}
	delete(h.conns, connID)
}

func (h *Hub) Stats() Stats {
	var s Stats
	h.do(func() {
		s = Stats{
			Connections:  len(h.conns),
			Participants: h.presence.len(),
			Rooms:        h.rooms.count(),
			PollRunning:  h.scheduler.running(),
		}
	})
	return s
}

// BroadcastRoom sends an event to the connections joined to roomID.
func (h *Hub) BroadcastRoom(roomID, event string, payload any) {
	h.do(func() {
		h.emitRoom(roomID, event, payload)
	})
}

func (h *Hub) emitAll(event string, payload any) {
	data, err := domain.Encode(event, payload)
	if err != nil {
		slog.Error("encode error", "event", event, "error", err)
		return
	}
	for _, conn := range h.conns {
		h.send(conn, data)
	}
}

func (h *Hub) emitRoom(roomID, event string, payload any) {
	data, err := domain.Encode(event, payload)
	if err != nil {
		slog.Error("encode error", "event", event, "error", err)
		return
	}
	for _, id := range h.rooms.members(roomID) {
		if conn, ok := h.conns[id]; ok {
			h.send(conn, data)
		}
	}
}

func (h *Hub) emitTo(conn domain.Connection, event string, payload any) {
	data, err := domain.Encode(event, payload)
	if err != nil {
		slog.Error("encode error", "event", event, "error", err)
		return
	}
	h.send(conn, data)
}

// send drops a connection that cannot keep up; the transport reports the
// resulting disconnect.
func (h *Hub) send(conn domain.Connection, data []byte) {
	if err := conn.Send(data); err != nil {
		slog.Warn("send failed, closing connection", "clientId", conn.ID(), "error", err)
		conn.Close()
	}
}
