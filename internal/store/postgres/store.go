// Package postgres is a core.Store on PostgreSQL via pgx. Use it when
// several app instances share one database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/chunkjob/internal/core"
)

var _ core.Store = (*Store)(nil)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

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

// Store persists jobs in the chunk_jobs table. The caller owns the pool.
type Store struct {
	db     DB
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// New creates a store over db. Call Migrate before first use.
func New(db DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		ttl:    core.DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the jobs table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres job store migration %d: %w", i+1, err)
		}
	}
	s.logger.Debug("postgres job store migrated", "migrations", len(migrations))
	return nil
}

const selectJob = `
SELECT id, operation, status, total, done, context, data, errors, message,
       revision, created_at, updated_at, expires_at
FROM chunk_jobs`

// Create stores a new job.
func (s *Store) Create(ctx context.Context, j *core.Job) error {
	expires := s.now().Add(s.ttl)
	ctxVals := j.Context
	if ctxVals == nil {
		ctxVals = core.Values{}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO chunk_jobs
			(id, operation, status, total, done, context, data, errors, message,
			 revision, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11, $12)`,
		j.ID, j.Operation, string(j.Status), j.Total, j.Done,
		ctxVals, j.Data, j.Errors, j.Message,
		j.CreatedAt, j.UpdatedAt, expires,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	j.Revision = 1
	j.ExpiresAt = expires
	return nil
}

// Load returns the job unless it is missing or expired.
func (s *Store) Load(ctx context.Context, id string) (*core.Job, error) {
	row := s.db.QueryRow(ctx, selectJob+` WHERE id = $1 AND expires_at > $2`, id, s.now())
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return j, nil
}

// Save overwrites the job if its revision is current.
func (s *Store) Save(ctx context.Context, j *core.Job) error {
	now := s.now()
	expires := now.Add(s.ttl)

	tag, err := s.db.Exec(ctx, `
		UPDATE chunk_jobs
		SET status = $3, total = $4, done = $5, context = $6, errors = $7,
		    message = $8, revision = revision + 1, updated_at = $9, expires_at = $10
		WHERE id = $1 AND revision = $2 AND expires_at > $11`,
		j.ID, j.Revision,
		string(j.Status), j.Total, j.Done, j.Context, j.Errors,
		j.Message, j.UpdatedAt, expires, now,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, j.ID, now)
	}

	j.Revision++
	j.ExpiresAt = expires
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, id string, now time.Time) error {
	var one int
	err := s.db.QueryRow(ctx,
		`SELECT 1 FROM chunk_jobs WHERE id = $1 AND expires_at > $2`, id, now,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	return core.ErrConflict
}

// Delete removes the job.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chunk_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteExpired removes every job past its TTL.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM chunk_jobs WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*core.Job, error) {
	var (
		j      core.Job
		status string
	)
	err := row.Scan(
		&j.ID, &j.Operation, &status, &j.Total, &j.Done,
		&j.Context, &j.Data, &j.Errors, &j.Message,
		&j.Revision, &j.CreatedAt, &j.UpdatedAt, &j.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = core.Status(status)
	if j.Context == nil {
		j.Context = core.Values{}
	}
	return &j, nil
}
