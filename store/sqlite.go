package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/samber/lo"

	"livepoll-server/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS polls (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	time_limit INTEGER NOT NULL,
	started_at INTEGER NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS poll_options (
	poll_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (poll_id, idx),
	FOREIGN KEY (poll_id) REFERENCES polls(id)
);

CREATE TABLE IF NOT EXISTS responses (
	poll_id TEXT NOT NULL,
	student_id TEXT NOT NULL,
	student_name TEXT NOT NULL,
	option_idx INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (poll_id, student_id),
	FOREIGN KEY (poll_id) REFERENCES polls(id)
);
`

// Store is a SQLite-backed domain.PollStore. Timestamps are stored as unix
// milliseconds.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.PollStore = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// single connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreatePoll deactivates any active poll and starts a new one now.
func (s *Store) CreatePoll(ctx context.Context, question string, options []string, timeLimit int) (*domain.Poll, error) {
	question = strings.TrimSpace(question)
	options = lo.Map(options, func(o string, _ int) string { return strings.TrimSpace(o) })
	if question == "" || timeLimit <= 0 || len(options) < 2 || lo.Contains(options, "") {
		return nil, domain.ErrInvalidPoll
	}

	id := uuid.New().String()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// start times strictly increase so the newest poll always wins a
	// supersede, even for polls created within the same millisecond
	var latest int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(started_at), 0) FROM polls").Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest start: %w", err)
	}
	startedAt := max(s.now().UnixMilli(), latest+1)

	if _, err := tx.ExecContext(ctx, "UPDATE polls SET is_active = 0 WHERE is_active = 1"); err != nil {
		return nil, fmt.Errorf("deactivate polls: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO polls (id, question, time_limit, started_at, is_active) VALUES (?, ?, ?, ?, 1)",
		id, question, timeLimit, startedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert poll: %w", err)
	}
	for i, text := range options {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO poll_options (poll_id, idx, text) VALUES (?, ?, ?)",
			id, i, text,
		)
		if err != nil {
			return nil, fmt.Errorf("insert option %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.poll(ctx, id)
}

func (s *Store) ActivePoll(ctx context.Context) (*domain.Poll, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM polls WHERE is_active = 1 ORDER BY started_at DESC LIMIT 1",
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.poll(ctx, id)
}

// EndPoll marks the poll inactive and returns its final tallies. Ending a
// poll twice returns the same tallies.
func (s *Store) EndPoll(ctx context.Context, pollID string) (*domain.Results, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE polls SET is_active = 0 WHERE id = ?", pollID)
	if err != nil {
		return nil, fmt.Errorf("end poll %s: %w", pollID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrPollNotFound
	}
	return s.Results(ctx, pollID)
}

func (s *Store) RecordResponse(ctx context.Context, pollID, studentID, studentName string, option int) (*domain.Results, error) {
	poll, err := s.poll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !poll.IsActive || !s.now().Before(poll.Deadline()) {
		return nil, domain.ErrPollClosed
	}
	if option < 0 || option >= len(poll.Options) {
		return nil, domain.ErrInvalidOption
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO responses (poll_id, student_id, student_name, option_idx, created_at) VALUES (?, ?, ?, ?, ?)",
		pollID, studentID, studentName, option, s.now().UnixMilli(),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return nil, domain.ErrAlreadyResponded
	}
	if err != nil {
		return nil, fmt.Errorf("insert response: %w", err)
	}
	return s.Results(ctx, pollID)
}

func (s *Store) Results(ctx context.Context, pollID string) (*domain.Results, error) {
	poll, err := s.poll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	return &domain.Results{
		PollID:     poll.ID,
		Question:   poll.Question,
		Options:    poll.Options,
		TotalVotes: lo.SumBy(poll.Options, func(o domain.Option) int { return o.Votes }),
		IsActive:   poll.IsActive,
	}, nil
}

// ListPolls returns every poll with its tallies, newest first.
func (s *Store) ListPolls(ctx context.Context) ([]domain.Results, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM polls ORDER BY started_at DESC")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history := make([]domain.Results, 0, len(ids))
	for _, id := range ids {
		results, err := s.Results(ctx, id)
		if err != nil {
			return nil, err
		}
		history = append(history, *results)
	}
	return history, nil
}

func (s *Store) poll(ctx context.Context, id string) (*domain.Poll, error) {
	poll := &domain.Poll{ID: id}
	var startedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT question, time_limit, started_at, is_active FROM polls WHERE id = ?",
		id,
	).Scan(&poll.Question, &poll.TimeLimit, &startedAt, &poll.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, err
	}
	poll.StartedAt = time.UnixMilli(startedAt).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT o.idx, o.text, COUNT(r.student_id)
		FROM poll_options o
		LEFT JOIN responses r ON r.poll_id = o.poll_id AND r.option_idx = o.idx
		WHERE o.poll_id = ?
		GROUP BY o.idx, o.text
		ORDER BY o.idx
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	poll.Options = make([]domain.Option, 0)
	for rows.Next() {
		var o domain.Option
		if err := rows.Scan(&o.Index, &o.Text, &o.Votes); err != nil {
			return nil, err
		}
		poll.Options = append(poll.Options, o)
	}
	return poll, rows.Err()
}
