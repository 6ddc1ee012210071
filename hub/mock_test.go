package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livepoll-server/domain"
)

type mockConn struct {
	id       string
	received [][]byte
	closed   bool
	// number of frames received when Close was first called
	closedAfter int
	sendErr     error
	mu          sync.Mutex
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.closedAfter = len(m.received)
	}
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) frames(t *testing.T) []domain.Envelope {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Envelope, 0, len(m.received))
	for _, data := range m.received {
		var env domain.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		out = append(out, env)
	}
	return out
}

func (m *mockConn) count(t *testing.T, event string) int {
	n := 0
	for _, env := range m.frames(t) {
		if env.Event == event {
			n++
		}
	}
	return n
}

// lastRoster decodes the most recent participants-updated payload.
func (m *mockConn) lastRoster(t *testing.T) []domain.Participant {
	t.Helper()
	frames := m.frames(t)
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == domain.EventParticipantsUpdated {
			var roster []domain.Participant
			require.NoError(t, json.Unmarshal(frames[i].Data, &roster))
			return roster
		}
	}
	t.Fatalf("connection %s received no roster", m.id)
	return nil
}

type mockStore struct {
	active  *domain.Poll
	ended   []string
	endErr  error
	results *domain.Results
	mu      sync.Mutex
}

func (s *mockStore) CreatePoll(ctx context.Context, question string, options []string, timeLimit int) (*domain.Poll, error) {
	return nil, nil
}

func (s *mockStore) ActivePoll(ctx context.Context) (*domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, nil
}

func (s *mockStore) EndPoll(ctx context.Context, pollID string) (*domain.Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, pollID)
	if s.endErr != nil {
		return nil, s.endErr
	}
	if s.results != nil {
		return s.results, nil
	}
	return &domain.Results{PollID: pollID}, nil
}

func (s *mockStore) RecordResponse(ctx context.Context, pollID, studentID, studentName string, option int) (*domain.Results, error) {
	return nil, nil
}

func (s *mockStore) Results(ctx context.Context, pollID string) (*domain.Results, error) {
	return nil, nil
}

func (s *mockStore) ListPolls(ctx context.Context) ([]domain.Results, error) {
	return nil, nil
}

func (s *mockStore) Ping(ctx context.Context) error {
	return nil
}

func (s *mockStore) getEnded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ended...)
}

func newTestHub(t *testing.T, store domain.PollStore) *Hub {
	t.Helper()
	h := New(store)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func connect(h *Hub, ids ...string) []*mockConn {
	conns := make([]*mockConn, 0, len(ids))
	for _, id := range ids {
		c := &mockConn{id: id}
		h.Register(c)
		conns = append(conns, c)
	}
	return conns
}

// newPoll builds a poll whose deadline is in from now.
func newPoll(id string, in time.Duration) *domain.Poll {
	const limit = 5
	return &domain.Poll{
		ID:        id,
		Question:  "2 + 2?",
		Options:   []domain.Option{{Index: 0, Text: "3"}, {Index: 1, Text: "4"}},
		TimeLimit: limit,
		StartedAt: time.Now().Add(in - limit*time.Second),
		IsActive:  true,
	}
}
