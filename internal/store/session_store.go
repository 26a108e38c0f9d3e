package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/maestro/internal/domain"
)

// SQLiteSessionStore persists session context in SQLite. Turns and trail
// entries are append-only rows; Save only inserts what is new.
type SQLiteSessionStore struct {
	db *DB
}

// NewSQLiteSessionStore creates a session store using the given database.
func NewSQLiteSessionStore(db *DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db}
}

// Get loads a session by id, or returns domain.ErrSessionNotFound.
func (s *SQLiteSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	var (
		sess                 domain.Session
		topic, activity      sql.NullString
		metadata             string
		createdAt, updatedAt string
	)
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT id, skill_level, topic, activity, metadata, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.SkillLevel, &topic, &activity, &metadata, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if topic.Valid {
		t := topic.String
		sess.Topic = &t
	}
	if activity.Valid {
		var a domain.Activity
		if err := json.Unmarshal([]byte(activity.String), &a); err == nil {
			sess.Activity = &a
		}
	}
	sess.Metadata = make(map[string]any)
	_ = json.Unmarshal([]byte(metadata), &sess.Metadata)

	if sess.Turns, err = s.loadTurns(ctx, id); err != nil {
		return nil, err
	}
	if sess.Trail, err = s.loadTrail(ctx, id); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Save upserts the session row and appends turns and trail entries that
// are not stored yet.
func (s *SQLiteSessionStore) Save(ctx context.Context, sess *domain.Session) error {
	meta, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	var topic, activity sql.NullString
	if sess.Topic != nil {
		topic = sql.NullString{String: *sess.Topic, Valid: true}
	}
	if sess.Activity != nil {
		b, err := json.Marshal(sess.Activity)
		if err != nil {
			return fmt.Errorf("encode activity: %w", err)
		}
		activity = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, skill_level, topic, activity, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   skill_level = excluded.skill_level,
		   topic = excluded.topic,
		   activity = excluded.activity,
		   metadata = excluded.metadata,
		   updated_at = excluded.updated_at`,
		sess.ID, sess.SkillLevel, topic, activity, string(meta),
		sess.CreatedAt.UTC().Format(time.RFC3339Nano), sess.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_turns WHERE session_id = ?`, sess.ID).Scan(&stored); err != nil {
		return fmt.Errorf("count turns: %w", err)
	}
	if stored > len(sess.Turns) {
		return fmt.Errorf("session %s: stored history has %d turns, context has %d", sess.ID, stored, len(sess.Turns))
	}
	for i := stored; i < len(sess.Turns); i++ {
		t := sess.Turns[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_turns (session_id, seq, role, body, responder, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
			sess.ID, i, t.Role, t.Text, t.Responder, t.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("append turn %d: %w", i, err)
		}
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_trail WHERE session_id = ?`, sess.ID).Scan(&stored); err != nil {
		return fmt.Errorf("count trail: %w", err)
	}
	for i := stored; i < len(sess.Trail); i++ {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_trail (session_id, seq, responder) VALUES (?, ?, ?)`,
			sess.ID, i, sess.Trail[i],
		); err != nil {
			return fmt.Errorf("append trail %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// List returns session ids, most recently updated first.
func (s *SQLiteSessionStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT id FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteSessionStore) loadTurns(ctx context.Context, id string) ([]domain.Turn, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT role, body, responder, timestamp FROM session_turns WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var ts string
		if err := rows.Scan(&t.Role, &t.Text, &t.Responder, &ts); err != nil {
			return nil, fmt.Errorf("load turns: %w", err)
		}
		t.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLiteSessionStore) loadTrail(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT responder FROM session_trail WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load trail: %w", err)
	}
	defer rows.Close()

	var trail []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("load trail: %w", err)
		}
		trail = append(trail, r)
	}
	return trail, rows.Err()
}
