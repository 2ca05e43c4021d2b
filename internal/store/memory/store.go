// Package memory is an in-process core.Store for tests and single-node
// development. Jobs are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

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

// WithClock overrides time.Now, for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store keeps jobs in a map. Safe for concurrent access. Callers always
// get copies, never the stored value.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*core.Job
	ttl  time.Duration
	now  func() time.Time
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs: make(map[string]*core.Job),
		ttl:  core.DefaultTTL,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new job.
func (s *Store) Create(_ context.Context, j *core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j.Revision = 1
	j.ExpiresAt = s.now().Add(s.ttl)
	s.jobs[j.ID] = j.Clone()
	return nil
}

// Load returns a copy of the job.
func (s *Store) Load(_ context.Context, id string) (*core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok || j.Expired(s.now()) {
		return nil, core.ErrNotFound
	}
	return j.Clone(), nil
}

// Save overwrites the job if its revision is current.
func (s *Store) Save(_ context.Context, j *core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cur, ok := s.jobs[j.ID]
	if !ok || cur.Expired(now) {
		return core.ErrNotFound
	}
	if cur.Revision != j.Revision {
		return core.ErrConflict
	}

	j.Revision++
	j.ExpiresAt = now.Add(s.ttl)
	s.jobs[j.ID] = j.Clone()
	return nil
}

// Delete removes the job.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

// DeleteExpired removes every job past its TTL.
func (s *Store) DeleteExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, j := range s.jobs {
		if j.Expired(now) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored jobs, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
