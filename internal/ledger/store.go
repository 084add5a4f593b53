package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"anigiffy/internal/config"
)

// Kind distinguishes preview renders from full renders.
type Kind string

const (
	KindPreview Kind = "preview"
	KindFull    Kind = "full"
)

// Status is the outcome of a job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Job is one generation attempt.
type Job struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"-"`
	Kind       Kind      `json:"kind"`
	Project    string    `json:"project"`
	Filename   string    `json:"filename,omitempty"`
	Size       int64     `json:"size"`
	Frames     int       `json:"frames"`
	Skipped    int       `json:"skipped"`
	Status     Status    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Message    string    `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open connects to the configured ledger database and creates its schema.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	dsn := cfg.LedgerDSN()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if strings.Contains(dsn, "mode=memory") {
		// A shared in-memory database disappears with its last connection.
		db.SetMaxOpenConns(1)
	} else {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	store := &Store{db: db, dsn: dsn, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts job, assigning an id and timestamp when missing.
func (s *Store) Record(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}
	err := s.execWithRetry(ctx, `INSERT INTO jobs
		(id, session_id, kind, project, filename, size, frames, skipped, status, error_kind, message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SessionID, string(job.Kind), job.Project, job.Filename, job.Size, job.Frames, job.Skipped,
		string(job.Status), job.ErrorKind, job.Message, job.DurationMs, job.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return Job{}, fmt.Errorf("record job: %w", err)
	}
	return job, nil
}

// ListBySession returns a session's jobs, newest first. A limit of zero or
// less returns every job.
func (s *Store) ListBySession(ctx context.Context, sessionID string, limit int) ([]Job, error) {
	query := `SELECT id, session_id, kind, project, filename, size, frames, skipped, status, error_kind, message, duration_ms, created_at
		FROM jobs WHERE session_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats counts jobs by "kind/status".
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, status, COUNT(1) FROM jobs GROUP BY kind, status")
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var kind, status string
		var count int
		if err := rows.Scan(&kind, &status, &count); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		stats[kind+"/"+status] = count
	}
	return stats, rows.Err()
}

// PruneBefore deletes jobs created before cutoff and returns how many were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return removed, nil
}

func scanJob(rows *sql.Rows) (Job, error) {
	var (
		job     Job
		kind    string
		status  string
		created string
	)
	if err := rows.Scan(&job.ID, &job.SessionID, &kind, &job.Project, &job.Filename, &job.Size, &job.Frames,
		&job.Skipped, &status, &job.ErrorKind, &job.Message, &job.DurationMs, &created); err != nil {
		return Job{}, fmt.Errorf("scan job: %w", err)
	}
	job.Kind, job.Status = Kind(kind), Status(status)
	ts, err := time.Parse(timeLayout, created)
	if err != nil {
		return Job{}, fmt.Errorf("parse job timestamp: %w", err)
	}
	job.CreatedAt = ts
	return job, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
