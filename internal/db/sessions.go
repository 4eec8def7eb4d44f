package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sagereplay/sagereplay/internal/events"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps a history of workflow runs and their steps. Nothing
// secret is stored: no passwords, session keys or response bodies.
type SessionStore struct {
	db *Database
}

// Session is one recorded run.
type Session struct {
	ID         string        `json:"id"`
	Username   string        `json:"username"`
	BaseURL    string        `json:"base_url"`
	Channel    string        `json:"channel"`
	State      string        `json:"state"`
	FailedStep string        `json:"failed_step,omitempty"`
	Error      string        `json:"error,omitempty"`
	Characters int           `json:"characters"`
	StartedAt  time.Time     `json:"started_at"`
	DurationMS int64         `json:"duration_ms"`
	Steps      []SessionStep `json:"steps,omitempty"`
}

// SessionStep is one completed transition of a run.
type SessionStep struct {
	Seq        int    `json:"seq"`
	State      string `json:"state"`
	Target     string `json:"target"`
	Skipped    bool   `json:"skipped"`
	DurationMS int64  `json:"duration_ms"`
	Status     *int64 `json:"status,omitempty"`
}

// NewSessionStore opens the database at dbPath and migrates the schema.
func NewSessionStore(dbPath string) (*SessionStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &SessionStore{db: database}
	if err := s.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate session database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			base_url TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT 'init',
			failed_step TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			characters INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS session_steps (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			state TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT '',
			skipped INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			status INTEGER,
			PRIMARY KEY (session_id, seq),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("database schema migrated")
	return nil
}

// Start records a new session.
func (s *SessionStore) Start(ctx context.Context, p events.SessionStartedPayload) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, username, base_url, channel, state, started_at) VALUES (?, ?, ?, ?, 'init', ?)",
		p.SessionID, p.Username, p.BaseURL, p.Channel, p.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", p.SessionID, err)
	}
	return nil
}

// RecordStep appends a step and moves the session to its state.
func (s *SessionStore) RecordStep(ctx context.Context, p events.StepCompletedPayload) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM session_steps WHERE session_id = ?", p.SessionID).Scan(&seq); err != nil {
			return err
		}

		var status sql.NullInt64
		if p.Status != nil {
			status = sql.NullInt64{Int64: *p.Status, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO session_steps (session_id, seq, state, target, skipped, duration_ms, status) VALUES (?, ?, ?, ?, ?, ?, ?)",
			p.SessionID, seq+1, p.State, p.Target, p.Skipped, p.DurationMS, status); err != nil {
			return fmt.Errorf("failed to record step: %w", err)
		}

		_, err := tx.ExecContext(ctx, "UPDATE sessions SET state = ? WHERE id = ?", p.State, p.SessionID)
		return err
	})
}

// Finish stores the terminal state of a session.
func (s *SessionStore) Finish(ctx context.Context, p events.SessionFinishedPayload) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET state = ?, failed_step = ?, error = ?, characters = ?, duration_ms = ? WHERE id = ?",
		p.State, p.FailedStep, p.Error, p.Characters, p.DurationMS, p.SessionID)
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", p.SessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish %s: %w", p.SessionID, ErrSessionNotFound)
	}
	return nil
}

// Prune deletes sessions started before cutoff along with their steps and
// returns how many sessions were removed.
func (s *SessionStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		ms := cutoff.UnixMilli()
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM session_steps WHERE session_id IN (SELECT id FROM sessions WHERE started_at < ?)", ms); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE started_at < ?", ms)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return removed, nil
}

// List returns the most recent sessions, newest first, without steps.
func (s *SessionStore) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, base_url, channel, state, failed_step, error, characters, started_at, duration_ms
		FROM sessions
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Get returns one session with its steps.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, base_url, channel, state, failed_step, error, characters, started_at, duration_ms
		FROM sessions WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, state, target, skipped, duration_ms, status
		FROM session_steps WHERE session_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var step SessionStep
		var status sql.NullInt64
		if err := rows.Scan(&step.Seq, &step.State, &step.Target, &step.Skipped, &step.DurationMS, &status); err != nil {
			return nil, err
		}
		if status.Valid {
			v := status.Int64
			step.Status = &v
		}
		sess.Steps = append(sess.Steps, step)
	}
	return &sess, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var started int64
	err := row.Scan(&sess.ID, &sess.Username, &sess.BaseURL, &sess.Channel, &sess.State,
		&sess.FailedStep, &sess.Error, &sess.Characters, &started, &sess.DurationMS)
	if err != nil {
		return Session{}, err
	}
	sess.StartedAt = time.UnixMilli(started).UTC()
	return sess, nil
}

// Subscribe records session events from bus. Events must be emitted with
// EmitSync so rows are written in order.
func (s *SessionStore) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventSessionStarted, "db.sessionStarted", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.SessionStartedPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		return s.Start(ctx, p)
	})
	bus.Subscribe(events.EventStepCompleted, "db.stepCompleted", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.StepCompletedPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		return s.RecordStep(ctx, p)
	})
	bus.Subscribe(events.EventSessionFinished, "db.sessionFinished", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.SessionFinishedPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		return s.Finish(ctx, p)
	})
}
