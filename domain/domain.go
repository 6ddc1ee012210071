package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Inbound event names.
const (
	EventJoinPoll     = "join-poll"
	EventLeavePoll    = "leave-poll"
	EventStudentJoin  = "student-join"
	EventStudentLeave = "student-leave"
	EventKickStudent  = "kick-student"
	EventChatMessage  = "chat-message"
)

// Outbound event names. EventChatMessage is used in both directions.
const (
	EventParticipantsUpdated = "participants-updated"
	EventKicked              = "kicked"
	EventNewPoll             = "new-poll"
	EventPollEnded           = "poll-ended"
	EventPollResultsUpdated  = "poll-results-updated"
)

const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Envelope is the frame exchanged over the real-time transport.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Participant struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
}

type KickRequest struct {
	StudentID string `json:"studentId"`
}

type Option struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Poll is a snapshot of a poll owned by the PollStore.
type Poll struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Options   []Option  `json:"options"`
	TimeLimit int       `json:"timeLimit"` // seconds
	StartedAt time.Time `json:"startedAt"`
	IsActive  bool      `json:"isActive"`
}

// Deadline is the authoritative end time of the poll.
func (p *Poll) Deadline() time.Time {
	return p.StartedAt.Add(time.Duration(p.TimeLimit) * time.Second)
}

// TimeRemaining returns whole seconds left at now, never negative.
func (p *Poll) TimeRemaining(now time.Time) int {
	left := p.Deadline().Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// PollSnapshot is the new-poll payload and the active poll API view.
type PollSnapshot struct {
	Poll
	TimeRemaining int `json:"timeRemaining"`
}

type Results struct {
	PollID     string   `json:"pollId"`
	Question   string   `json:"question"`
	Options    []Option `json:"options"`
	TotalVotes int      `json:"totalVotes"`
	IsActive   bool     `json:"isActive"`
}

type PollEnded struct {
	PollID string `json:"pollId"`
}

// Connection is a live transport session. ID is unique for its lifetime.
type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Coordinator receives every inbound transport event.
type Coordinator interface {
	Register(conn Connection)
	Disconnect(conn Connection)
	JoinRoom(conn Connection, roomID string)
	LeaveRoom(conn Connection, roomID string)
	Announce(conn Connection, p Participant)
	Depart(conn Connection)
	Kick(studentID string)
	Relay(msg ChatMessage)
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}

// PollStore persists polls and responses. ActivePoll returns nil, nil when
// no poll is active.
type PollStore interface {
	CreatePoll(ctx context.Context, question string, options []string, timeLimit int) (*Poll, error)
	ActivePoll(ctx context.Context) (*Poll, error)
	EndPoll(ctx context.Context, pollID string) (*Results, error)
	RecordResponse(ctx context.Context, pollID, studentID, studentName string, option int) (*Results, error)
	Results(ctx context.Context, pollID string) (*Results, error)
	ListPolls(ctx context.Context) ([]Results, error)
	Ping(ctx context.Context) error
}
