package core

import "context"

// Store persists jobs between requests.
//
// The store does not serialize access per id; the Dispatcher does that with
// a Locker. Save is still guarded by a revision check so two writers racing
// past the lock cannot silently overwrite each other.
type Store interface {
	// Create persists a new job and sets its revision to 1.
	Create(ctx context.Context, j *Job) error

	// Load returns the job or ErrNotFound if it is missing or expired.
	Load(ctx context.Context, id string) (*Job, error)

	// Save overwrites the stored job. The stored revision must equal
	// j.Revision, otherwise ErrConflict is returned. On success j.Revision
	// is incremented and the TTL is refreshed.
	Save(ctx context.Context, j *Job) error

	// Delete removes the job. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// DeleteExpired evicts jobs whose TTL has passed and returns how many.
	DeleteExpired(ctx context.Context) (int, error)
}

// Locker serializes steps per job id.
type Locker interface {
	// Lock acquires the lock for key. It returns ErrBusy if the lock is
	// still held when the implementation's wait timeout expires.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
