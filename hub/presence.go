package hub

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"livepoll-server/domain"
)

type presenceEntry struct {
	connID      string
	participant domain.Participant
	seq         uint64
}

// directory maps connections to the participant they announced. One
// student may hold several connections.
type directory struct {
	entries map[string]presenceEntry
	seq     uint64
}

func newDirectory() *directory {
	return &directory{entries: make(map[string]presenceEntry)}
}

// set keeps the original join position when a connection re-announces.
func (d *directory) set(connID string, p domain.Participant) {
	if e, ok := d.entries[connID]; ok {
		e.participant = p
		d.entries[connID] = e
		return
	}
	d.seq++
	d.entries[connID] = presenceEntry{connID: connID, participant: p, seq: d.seq}
}

func (d *directory) remove(connID string) bool {
	if _, ok := d.entries[connID]; !ok {
		return false
	}
	delete(d.entries, connID)
	return true
}

func (d *directory) ordered() []presenceEntry {
	entries := lo.Values(d.entries)
	slices.SortFunc(entries, func(a, b presenceEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return entries
}

// connsFor returns every connection announced under studentID, in join order.
func (d *directory) connsFor(studentID string) []string {
	matches := lo.Filter(d.ordered(), func(e presenceEntry, _ int) bool {
		return e.participant.StudentID == studentID
	})
	return lo.Map(matches, func(e presenceEntry, _ int) string {
		return e.connID
	})
}

// roster is the distinct set of announced participants in join order.
func (d *directory) roster() []domain.Participant {
	return lo.Uniq(lo.Map(d.ordered(), func(e presenceEntry, _ int) domain.Participant {
		return e.participant
	}))
}

func (d *directory) len() int {
	return len(d.entries)
}

// Announce records the participant for conn and broadcasts the roster to
// every connection. Empty identity fields are ignored.
func (h *Hub) Announce(conn domain.Connection, p domain.Participant) {
	if p.StudentID == "" || p.StudentName == "" {
		return
	}
	h.do(func() {
		if _, ok := h.conns[conn.ID()]; !ok {
			return
		}
		h.presence.set(conn.ID(), p)
		slog.Info("student joined", "clientId", conn.ID(), "studentId", p.StudentID, "studentName", p.StudentName)
		h.broadcastRoster()
	})
}

// Depart removes the participant announced on conn, if any.
func (h *Hub) Depart(conn domain.Connection) {
	h.do(func() {
		h.depart(conn.ID())
	})
}

func (h *Hub) depart(connID string) {
	if !h.presence.remove(connID) {
		return
	}
	slog.Info("student left", "clientId", connID)
	h.broadcastRoster()
}

func (h *Hub) broadcastRoster() {
	h.emitAll(domain.EventParticipantsUpdated, h.presence.roster())
}
