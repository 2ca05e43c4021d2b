// Package sqlite is a core.Store backed by a single SQLite file. It suits a
// single-node deployment where jobs must survive a restart.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/chunkjob/internal/core"
)

var _ core.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	operation  TEXT NOT NULL,
	status     TEXT NOT NULL,
	revision   INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_expires_at ON jobs (expires_at);
`

// Option configures the Store.
type Option func(*Store)

// WithTTL sets how long an untouched job is kept.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides time.Now, for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store persists jobs as JSON rows.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Open opens (or creates) the database at path and migrates it.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "jobs.db"
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	s := &Store{
		db:     db,
		ttl:    core.DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Debug("sqlite job store ready", "path", path, "ttl", s.ttl.String())
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate sqlite job store: %w", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores a new job.
func (s *Store) Create(ctx context.Context, j *core.Job) error {
	rec := j.Clone()
	rec.Revision = 1
	rec.ExpiresAt = s.now().Add(s.ttl)

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, operation, status, revision, payload, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Operation, string(rec.Status), rec.Revision, string(payload),
		rec.UpdatedAt.UnixMilli(), rec.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	j.Revision = rec.Revision
	j.ExpiresAt = rec.ExpiresAt
	return nil
}

// Load returns the job unless it is missing or expired.
func (s *Store) Load(ctx context.Context, id string) (*core.Job, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM jobs WHERE id = ? AND expires_at > ?`,
		id, s.now().UnixMilli(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}

	var j core.Job
	if err := json.Unmarshal([]byte(payload), &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	if j.Context == nil {
		j.Context = core.Values{}
	}
	return &j, nil
}

// Save overwrites the job if its revision is current.
func (s *Store) Save(ctx context.Context, j *core.Job) error {
	now := s.now()
	rec := j.Clone()
	rec.Revision = j.Revision + 1
	rec.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs
		 SET status = ?, revision = ?, payload = ?, updated_at = ?, expires_at = ?
		 WHERE id = ? AND revision = ? AND expires_at > ?`,
		string(rec.Status), rec.Revision, string(payload), rec.UpdatedAt.UnixMilli(), rec.ExpiresAt.UnixMilli(),
		j.ID, j.Revision, now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return s.missOrConflict(ctx, j.ID, now)
	}

	j.Revision = rec.Revision
	j.ExpiresAt = rec.ExpiresAt
	return nil
}

// missOrConflict explains why a conditional update touched no row.
func (s *Store) missOrConflict(ctx context.Context, id string, now time.Time) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM jobs WHERE id = ? AND expires_at > ?`, id, now.UnixMilli(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	return core.ErrConflict
}

// Delete removes the job.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteExpired removes every job past its TTL.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return int(n), nil
}
