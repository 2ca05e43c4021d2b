package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownOperation is returned when no handler is registered for an operation id.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrInvalidOptions is returned when a handler rejects the job options.
	ErrInvalidOptions = errors.New("invalid job options")

	// ErrNotFound is returned for unknown, cancelled or expired job ids.
	// Clients should stop polling when they see it.
	ErrNotFound = errors.New("job not found")

	// ErrConflict is returned by Store.Save when the stored revision moved.
	ErrConflict = errors.New("job revision conflict")

	// ErrBusy is returned when another step for the same job is in flight.
	// Clients should retry after a short delay.
	ErrBusy = errors.New("job busy, step already in progress")
)

// CreationError reports why a job could not be created. No record is
// persisted when it is returned.
type CreationError struct {
	Operation string
	Err       error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create %s: %v", e.Operation, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// ItemError marks a failure confined to one item. RunChunk counts it in
// the job's error log and moves on to the next item.
type ItemError struct {
	Err error
}

func (e *ItemError) Error() string {
	return e.Err.Error()
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// SkipItem wraps err as an ItemError. Returns nil if err is nil.
func SkipItem(err error) error {
	if err == nil {
		return nil
	}
	return &ItemError{Err: err}
}
