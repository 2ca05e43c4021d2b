package core

import (
	"context"
	"errors"
	"fmt"
)

const (
	// DefaultLimit is the chunk size used when a job does not set one.
	DefaultLimit = 100

	// MaxLimit caps the chunk size so one step stays inside the request budget.
	MaxLimit = 5000

	// ContextCheckInterval is how many items Apply handles between
	// cancellation checks.
	ContextCheckInterval = 100
)

// Chunk describes one operation in terms of a paged source and a per-item
// action. RunChunk drives it.
type Chunk[T any] struct {
	// Start runs before the first fetch of a job (offset 0).
	Start func(ctx context.Context, job *Job) error

	// Fetch returns up to limit items starting at offset.
	// It may record extra resumption state in job.Context.
	Fetch func(ctx context.Context, job *Job, offset, limit int) ([]T, error)

	// Apply handles one item. Errors wrapped with SkipItem are counted and
	// skipped; any other error aborts the chunk.
	Apply func(ctx context.Context, job *Job, item T) error

	// Flush runs after all items of the chunk were applied.
	Flush func(ctx context.Context, job *Job) error

	// Finish composes the final message once the source is exhausted.
	Finish func(job *Job, out Outcome) string
}

// RunChunk processes one chunk of job and returns the updated copy.
//
// The input job is not modified. On error the returned job must be
// discarded; the caller keeps the previous state.
func RunChunk[T any](ctx context.Context, job Job, c Chunk[T]) (Job, Outcome, error) {
	j := job.Clone()
	var out Outcome

	if c.Fetch == nil {
		return job, out, errors.New("chunk has no fetch function")
	}

	offset := j.Context.Int(OffsetKey)
	limit := j.Data.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	if offset == 0 && c.Start != nil {
		if err := c.Start(ctx, j); err != nil {
			return job, out, fmt.Errorf("start: %w", err)
		}
	}

	items, err := c.Fetch(ctx, j, offset, limit)
	if err != nil {
		return job, out, fmt.Errorf("fetch offset %d: %w", offset, err)
	}

	for i, item := range items {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return job, out, err
			}
		}
		if c.Apply == nil {
			continue
		}
		if err := c.Apply(ctx, j, item); err != nil {
			var itemErr *ItemError
			if !errors.As(err, &itemErr) {
				return job, out, fmt.Errorf("item %d: %w", offset+i+1, err)
			}
			msg := fmt.Sprintf("item %d: %v", offset+i+1, itemErr.Err)
			out.Failed++
			out.Failures = append(out.Failures, msg)
			j.Errors.Count++
			j.Errors.Sample = append(j.Errors.Sample, msg)
		}
	}

	if len(items) > 0 && c.Flush != nil {
		if err := c.Flush(ctx, j); err != nil {
			return job, out, fmt.Errorf("flush: %w", err)
		}
	}

	out.Processed = len(items)
	j.Context.SetInt(OffsetKey, offset+len(items))
	j.Done += len(items)

	// A short slice means the source ran dry; no need for an empty round trip.
	if len(items) < limit {
		out.Exhausted = true
		j.Status = StatusDone
		if c.Finish != nil {
			out.Message = c.Finish(j, out)
		}
		j.Message = out.Message
	}

	return *j, out, nil
}
