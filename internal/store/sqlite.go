package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smaq/smaq/internal/model"

	_ "modernc.org/sqlite"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS results (
    id          INTEGER PRIMARY KEY,
    status      TEXT NOT NULL,
    engine      TEXT NOT NULL,
    input_len   INTEGER NOT NULL,
    content     BLOB,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const selectResultColumns = `SELECT id, status, engine, input_len, content, error,
	duration_ms, created_at, finished_at FROM results`

// ErrNotFound is returned when a result is not found.
var ErrNotFound = errors.New("result not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on a private in-memory SQLite database. Its
// contents live exactly as long as the store.
type SQLiteStore struct {
	db *sql.DB
}

// NewMemoryStore opens an in-memory database and runs migrations.
func NewMemoryStore() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: gets its own database; keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createResultsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection, discarding all results.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreatePending inserts a new pending result record.
func (s *SQLiteStore) CreatePending(ctx context.Context, r *model.Result) error {
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	if r.Status != model.StatusPending {
		return fmt.Errorf("create result %d with status %q: %w", r.ID, r.Status, ErrInvalidTransition)
	}
	return s.insert(ctx, s.db, r)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insert(ctx context.Context, db execer, r *model.Result) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO results (
			id, status, engine, input_len, content, error,
			duration_ms, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Status, r.Engine, r.InputLen, r.Content, r.Error,
		r.DurationMS, r.CreatedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Finish records the terminal state of a job. A job that was never
// registered as pending is inserted directly. Terminal results are never
// overwritten.
func (s *SQLiteStore) Finish(ctx context.Context, r *model.Result) error {
	if r.Status == model.StatusCompleted && r.Content == nil {
		return ErrNilContent
	}
	if !model.ValidTransition(model.StatusPending, r.Status) {
		return fmt.Errorf("finish result %d with status %q: %w", r.ID, r.Status, ErrInvalidTransition)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM results WHERE id = ?", r.ID).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.insert(ctx, tx, r); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("get result status: %w", err)
	default:
		if !model.ValidTransition(current, r.Status) {
			return fmt.Errorf("result %d %s→%s: %w", r.ID, current, r.Status, ErrInvalidTransition)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE results SET status = ?, engine = ?, input_len = ?, content = ?, error = ?,
				duration_ms = ?, finished_at = ? WHERE id = ?`,
			r.Status, r.Engine, r.InputLen, r.Content, r.Error,
			r.DurationMS, r.FinishedAt, r.ID,
		); err != nil {
			return fmt.Errorf("update result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*model.Result, error) {
	r := &model.Result{}
	err := row.Scan(
		&r.ID, &r.Status, &r.Engine, &r.InputLen, &r.Content, &r.Error,
		&r.DurationMS, &r.CreatedAt, &r.FinishedAt,
	)
	return r, err
}

// GetResult retrieves a result by job ID.
func (s *SQLiteStore) GetResult(ctx context.Context, id int64) (*model.Result, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx, selectResultColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return r, nil
}

// ListResults returns a page of results ordered by job ID descending, along
// with the total count of all results.
func (s *SQLiteStore) ListResults(ctx context.Context, limit, offset int) ([]*model.Result, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM results").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		selectResultColumns+" ORDER BY id DESC LIMIT ? OFFSET ?", limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []*model.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate results: %w", err)
	}

	return results, total, nil
}

// GetResultStats aggregates result counts and the average processing time
// of finished jobs.
func (s *SQLiteStore) GetResultStats(ctx context.Context) (*ResultStats, error) {
	stats := &ResultStats{CountByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM results GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	rows.Close()

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM results WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}
