// Package redis implements core.Store and core.Locker on Redis. Job records
// are JSON strings whose key TTL is the job TTL, so abandoned jobs expire
// without a sweeper. The locker lets several app instances share one store.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client, redis.WithTTL(24*time.Hour))
//	d := core.NewDispatcher(reg, s, core.WithLocker(redis.NewLocker(client, 2*time.Second)))
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/chunkjob/internal/core"
)

var _ core.Store = (*Store)(nil)

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

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store keeps each job under its own key. The caller owns the client.
type Store struct {
	client goredis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Redis-backed store.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, ttl: core.DefaultTTL, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Create stores a new job. It fails if the id is already taken.
func (s *Store) Create(ctx context.Context, j *core.Job) error {
	rec := j.Clone()
	rec.Revision = 1
	rec.ExpiresAt = time.Now().Add(s.ttl)

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("chunkjob/redis: encode job: %w", err)
	}

	ok, err := s.client.SetNX(ctx, jobKey(rec.ID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("chunkjob/redis: create job: %w", err)
	}
	if !ok {
		return fmt.Errorf("chunkjob/redis: job %s already exists", rec.ID)
	}

	j.Revision = rec.Revision
	j.ExpiresAt = rec.ExpiresAt
	return nil
}

// Load returns the job or core.ErrNotFound once the key expired.
func (s *Store) Load(ctx context.Context, id string) (*core.Job, error) {
	raw, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("chunkjob/redis: load job: %w", err)
	}
	return decode(raw)
}

// Save overwrites the job inside a WATCH transaction so a concurrent
// writer turns into core.ErrConflict.
func (s *Store) Save(ctx context.Context, j *core.Job) error {
	key := jobKey(j.ID)

	rec := j.Clone()
	rec.Revision = j.Revision + 1
	rec.ExpiresAt = time.Now().Add(s.ttl)
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("chunkjob/redis: encode job: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return core.ErrNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decode(raw)
		if err != nil {
			return err
		}
		if cur.Revision != j.Revision {
			return core.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
	case errors.Is(err, goredis.TxFailedErr):
		return core.ErrConflict
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrConflict):
		return err
	default:
		return fmt.Errorf("chunkjob/redis: save job: %w", err)
	}

	j.Revision = rec.Revision
	j.ExpiresAt = rec.ExpiresAt
	return nil
}

// Delete removes the job.
func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("chunkjob/redis: delete job: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires job keys itself.
func (s *Store) DeleteExpired(context.Context) (int, error) {
	return 0, nil
}

func decode(raw []byte) (*core.Job, error) {
	var j core.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("chunkjob/redis: decode job: %w", err)
	}
	if j.Context == nil {
		j.Context = core.Values{}
	}
	return &j, nil
}
