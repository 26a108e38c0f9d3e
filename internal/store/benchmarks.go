package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Benchmark statuses.
const (
	BenchmarkPending    = "pending"
	BenchmarkInProgress = "in_progress"
	BenchmarkCompleted  = "completed"
	BenchmarkFailed     = "failed"
)

var benchmarkStatuses = map[string]bool{
	BenchmarkPending: true, BenchmarkInProgress: true, BenchmarkCompleted: true, BenchmarkFailed: true,
}

// Benchmark is one tracked development milestone.
type Benchmark struct {
	ID          string     `json:"id"`
	Phase       string     `json:"phase"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	Failures    []string   `json:"failures,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// BenchmarkStore manages the benchmarks table.
type BenchmarkStore struct {
	db *DB
}

// NewBenchmarkStore creates a benchmark store using the given database.
func NewBenchmarkStore(db *DB) *BenchmarkStore {
	return &BenchmarkStore{db: db}
}

// Log records a milestone. A completed or failed status closes the latest
// open benchmark for the phase when there is one; otherwise a new row is
// created.
func (s *BenchmarkStore) Log(ctx context.Context, phase, description, status, notes string) (*Benchmark, error) {
	if status == "" || status == "started" {
		status = BenchmarkInProgress
	}
	if !benchmarkStatuses[status] {
		return nil, fmt.Errorf("invalid benchmark status %q", status)
	}
	if phase == "" {
		return nil, errors.New("benchmark phase is required")
	}

	now := time.Now().UTC()
	if status == BenchmarkCompleted || status == BenchmarkFailed {
		open, err := s.latestOpen(ctx, phase)
		if err != nil {
			return nil, err
		}
		if open != nil {
			open.Status = status
			open.UpdatedAt = now
			if notes != "" {
				open.Notes = notes
			}
			if status == BenchmarkCompleted {
				open.CompletedAt = &now
			} else if description != "" {
				open.Failures = append(open.Failures, description)
			}
			return open, s.update(ctx, open)
		}
	}

	b := &Benchmark{
		ID:          uuid.New().String(),
		Phase:       phase,
		Description: description,
		Status:      status,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status == BenchmarkCompleted {
		b.CompletedAt = &now
	}
	failures, _ := json.Marshal(b.Failures)
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO benchmarks (id, phase, description, status, notes, failures, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Phase, b.Description, b.Status, b.Notes, string(failures),
		b.CreatedAt.Format(time.RFC3339Nano), b.UpdatedAt.Format(time.RFC3339Nano), nullTime(b.CompletedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert benchmark: %w", err)
	}
	s.db.log.Info().Str("phase", phase).Str("status", status).Msg("benchmark logged")
	return b, nil
}

// List returns benchmarks, newest first, optionally filtered by phase.
func (s *BenchmarkStore) List(ctx context.Context, phase string, limit int) ([]Benchmark, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, phase, description, status, notes, failures, created_at, updated_at, completed_at
		  FROM benchmarks`
	args := []any{}
	if phase != "" {
		q += ` WHERE phase = ?`
		args = append(args, phase)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list benchmarks: %w", err)
	}
	defer rows.Close()

	var out []Benchmark
	for rows.Next() {
		b, err := scanBenchmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// StatusCounts returns how many benchmarks are in each status.
func (s *BenchmarkStore) StatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT status, COUNT(*) FROM benchmarks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("benchmark counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (s *BenchmarkStore) latestOpen(ctx context.Context, phase string) (*Benchmark, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT id, phase, description, status, notes, failures, created_at, updated_at, completed_at
		 FROM benchmarks WHERE phase = ? AND status IN ('pending', 'in_progress')
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, phase)
	b, err := scanBenchmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *BenchmarkStore) update(ctx context.Context, b *Benchmark) error {
	failures, _ := json.Marshal(b.Failures)
	_, err := s.db.sql.ExecContext(ctx,
		`UPDATE benchmarks SET status = ?, notes = ?, failures = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		b.Status, b.Notes, string(failures), b.UpdatedAt.Format(time.RFC3339Nano), nullTime(b.CompletedAt), b.ID,
	)
	if err != nil {
		return fmt.Errorf("update benchmark %s: %w", b.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBenchmark(row scanner) (*Benchmark, error) {
	var (
		b                    Benchmark
		failures             string
		createdAt, updatedAt string
		completedAt          sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Phase, &b.Description, &b.Status, &b.Notes, &failures,
		&createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(failures), &b.Failures)
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err == nil {
			b.CompletedAt = &t
		}
	}
	return &b, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}
