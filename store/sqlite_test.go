package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepoll-server/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreatePoll(t *testing.T) {
	tests := []struct {
		name      string
		question  string
		options   []string
		timeLimit int
		wantErr   error
	}{
		{name: "valid", question: "Capital of France?", options: []string{"Paris", "Lyon"}, timeLimit: 60},
		{name: "empty question", question: "  ", options: []string{"a", "b"}, timeLimit: 60, wantErr: domain.ErrInvalidPoll},
		{name: "one option", question: "q", options: []string{"a"}, timeLimit: 60, wantErr: domain.ErrInvalidPoll},
		{name: "blank option", question: "q", options: []string{"a", ""}, timeLimit: 60, wantErr: domain.ErrInvalidPoll},
		{name: "no time limit", question: "q", options: []string{"a", "b"}, wantErr: domain.ErrInvalidPoll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)

			poll, err := s.CreatePoll(context.Background(), tt.question, tt.options, tt.timeLimit)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, poll.ID)
			assert.True(t, poll.IsActive)
			assert.Equal(t, tt.timeLimit, poll.TimeLimit)
			require.Len(t, poll.Options, 2)
			assert.Equal(t, domain.Option{Index: 1, Text: "Lyon"}, poll.Options[1])
		})
	}
}

func TestStore_NewPollDeactivatesPrevious(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreatePoll(ctx, "first", []string{"a", "b"}, 30)
	require.NoError(t, err)
	second, err := s.CreatePoll(ctx, "second", []string{"a", "b"}, 30)
	require.NoError(t, err)

	active, err := s.ActivePoll(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	results, err := s.Results(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, results.IsActive)
}

func TestStore_StartTimesStrictlyIncrease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	first, err := s.CreatePoll(ctx, "first", []string{"a", "b"}, 30)
	require.NoError(t, err)
	second, err := s.CreatePoll(ctx, "second", []string{"a", "b"}, 30)
	require.NoError(t, err)

	assert.True(t, first.StartedAt.Equal(fixed))
	assert.True(t, second.StartedAt.After(first.StartedAt))
}

func TestStore_ActivePollNone(t *testing.T) {
	s := newTestStore(t)

	poll, err := s.ActivePoll(context.Background())

	require.NoError(t, err)
	assert.Nil(t, poll)
}

func TestStore_RecordResponse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	poll, err := s.CreatePoll(ctx, "2 + 2?", []string{"3", "4", "5"}, 30)
	require.NoError(t, err)

	results, err := s.RecordResponse(ctx, poll.ID, "s1", "Amy", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, results.TotalVotes)
	assert.Equal(t, 1, results.Options[1].Votes)

	_, err = s.RecordResponse(ctx, poll.ID, "s1", "Amy", 2)
	assert.ErrorIs(t, err, domain.ErrAlreadyResponded)

	_, err = s.RecordResponse(ctx, poll.ID, "s2", "Bob", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidOption)

	_, err = s.RecordResponse(ctx, "missing", "s2", "Bob", 0)
	assert.ErrorIs(t, err, domain.ErrPollNotFound)

	results, err = s.RecordResponse(ctx, poll.ID, "s2", "Bob", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, results.TotalVotes)
}

func TestStore_RecordResponseAfterDeadline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	poll, err := s.CreatePoll(ctx, "q", []string{"a", "b"}, 10)
	require.NoError(t, err)

	s.now = func() time.Time { return poll.StartedAt.Add(10 * time.Second) }

	_, err = s.RecordResponse(ctx, poll.ID, "s1", "Amy", 0)
	assert.ErrorIs(t, err, domain.ErrPollClosed)
}

func TestStore_EndPoll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	poll, err := s.CreatePoll(ctx, "q", []string{"a", "b"}, 30)
	require.NoError(t, err)
	_, err = s.RecordResponse(ctx, poll.ID, "s1", "Amy", 0)
	require.NoError(t, err)

	results, err := s.EndPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.False(t, results.IsActive)
	assert.Equal(t, 1, results.TotalVotes)

	again, err := s.EndPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, results, again)

	active, err := s.ActivePoll(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = s.RecordResponse(ctx, poll.ID, "s2", "Bob", 1)
	assert.ErrorIs(t, err, domain.ErrPollClosed)

	_, err = s.EndPoll(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPollNotFound)
}

func TestStore_ListPolls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	first, err := s.CreatePoll(ctx, "first", []string{"a", "b"}, 30)
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	second, err := s.CreatePoll(ctx, "second", []string{"a", "b"}, 30)
	require.NoError(t, err)

	history, err := s.ListPolls(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].PollID)
	assert.Equal(t, first.ID, history[1].PollID)
}
