package core

import "context"

// Handler implements one operation. A handler holds no per-job state:
// everything it needs to resume lives in the Job it is given.
type Handler interface {
	// Validate checks the options before the job is stored.
	Validate(opts Options) error

	// Total estimates the number of items. It runs exactly once, at creation.
	Total(ctx context.Context, opts Options) (int, error)

	// Process runs one bounded chunk and returns the updated job.
	// Returning an error aborts the job with status "error".
	Process(ctx context.Context, job Job) (Job, Outcome, error)
}

// Announcer is implemented by handlers that describe a job when it is
// created, e.g. "Exporting 25 products".
type Announcer interface {
	StartMessage(opts Options, total int) string
}

// Factory builds a handler for an operation.
type Factory func() Handler

// Outcome summarizes one chunk.
type Outcome struct {
	Processed int      // items consumed from the source, including failures
	Failed    int      // items that failed without aborting the chunk
	Failures  []string // messages for the failed items, in order
	Exhausted bool     // the source has no more items
	Message   string   // final message, set when Exhausted
}
