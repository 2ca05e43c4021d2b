package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultTTL is how long an untouched job survives in the store.
	DefaultTTL = 24 * time.Hour

	// DefaultErrorSampleSize bounds the per-item failure messages kept on a job.
	DefaultErrorSampleSize = 10
)

// Dispatcher is the entry point for clients: it creates jobs and advances
// them one chunk per Step call.
type Dispatcher struct {
	registry *Registry
	store    Store
	locker   Locker
	logger   *slog.Logger

	defaultLimit int
	maxLimit     int
	sampleSize   int
	stepTimeout  time.Duration

	now   func() time.Time
	newID func() string

	sweepMu   sync.Mutex
	lastSweep time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithLocker replaces the in-process KeyedLocker, e.g. with a Redis lock
// when several instances share one store.
func WithLocker(l Locker) Option {
	return func(d *Dispatcher) { d.locker = l }
}

// WithDefaultLimit sets the chunk size for jobs created without one.
func WithDefaultLimit(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.defaultLimit = n
		}
	}
}

// WithMaxLimit caps the chunk size a client may request.
func WithMaxLimit(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxLimit = n
		}
	}
}

// WithErrorSampleSize bounds how many per-item failure messages are kept.
func WithErrorSampleSize(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.sampleSize = n
		}
	}
}

// WithStepTimeout bounds the time a single chunk may run. Zero means the
// request context alone decides.
func WithStepTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.stepTimeout = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher over reg and store.
func NewDispatcher(reg *Registry, store Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:     reg,
		store:        store,
		logger:       slog.Default(),
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
		sampleSize:   DefaultErrorSampleSize,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.locker == nil {
		d.locker = NewKeyedLocker(DefaultLockWait)
	}
	if d.defaultLimit > d.maxLimit {
		d.defaultLimit = d.maxLimit
	}
	return d
}

// Registry returns the registry the dispatcher resolves handlers from.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Create validates opts, sizes the job and stores it. Nothing is stored
// when it returns an error; the error is always a *CreationError.
func (d *Dispatcher) Create(ctx context.Context, operation string, opts Options) (Snapshot, error) {
	fail := func(err error) (Snapshot, error) {
		return Snapshot{}, &CreationError{Operation: operation, Err: err}
	}

	h, err := d.registry.Lookup(operation)
	if err != nil {
		return fail(err)
	}

	opts, err = d.normalize(opts)
	if err != nil {
		return fail(err)
	}

	if err := h.Validate(opts); err != nil {
		if !errors.Is(err, ErrInvalidOptions) {
			err = fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
		return fail(err)
	}

	total, err := h.Total(ctx, opts)
	if err != nil {
		return fail(fmt.Errorf("count items: %w", err))
	}
	if total < 0 {
		total = 0
	}

	message := fmt.Sprintf("Queued %d items", total)
	if a, ok := h.(Announcer); ok {
		message = a.StartMessage(opts, total)
	}

	now := d.now()
	job := &Job{
		ID:        d.newID(),
		Operation: operation,
		Status:    StatusRunning,
		Total:     total,
		Context:   Values{OffsetKey: "0"},
		Data:      opts,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := d.store.Create(ctx, job); err != nil {
		return fail(fmt.Errorf("store job: %w", err))
	}

	d.logger.Info("job created",
		"job_id", job.ID,
		"operation", operation,
		"total", total,
		"limit", opts.Limit,
	)

	return SnapshotOf(job), nil
}

// Step advances the job by one chunk.
//
// Terminal jobs are returned unchanged without touching any sink. Handler
// errors and panics end the job with status "error" and are not returned;
// the returned error is reserved for ErrNotFound, ErrBusy and store failures.
// When ctx is cancelled by the caller mid-chunk nothing is saved and
// ctx.Err() is returned, leaving the job resumable.
func (d *Dispatcher) Step(ctx context.Context, id string) (Snapshot, error) {
	unlock, err := d.locker.Lock(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	defer unlock()

	job, err := d.store.Load(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if job.Status.Terminal() {
		return SnapshotOf(job), nil
	}

	log := d.logger.With("job_id", job.ID, "operation", job.Operation)
	start := time.Now()

	next, out, err := d.run(ctx, log, job)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// The caller went away. The record stays at its last checkpoint
		// and the next step redoes the chunk.
		log.Warn("job step abandoned", "error", err, "done", job.Done)
		return Snapshot{}, ctx.Err()
	}
	if err != nil {
		next = d.failed(job, err)
		log.Error("job step failed",
			"error", err,
			"done", job.Done,
		)
	}
	next.UpdatedAt = d.now()

	if err := d.store.Save(ctx, next); err != nil {
		if errors.Is(err, ErrConflict) {
			return Snapshot{}, ErrBusy
		}
		return Snapshot{}, fmt.Errorf("save job %s: %w", id, err)
	}

	log.Debug("job step",
		"done", next.Done,
		"total", next.Total,
		"processed", out.Processed,
		"failed", out.Failed,
		"status", next.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if next.Status == StatusDone {
		log.Info("job finished",
			"done", next.Done,
			"errors", next.Errors.Count,
		)
	}

	return SnapshotOf(next), nil
}

// Status returns the job's snapshot without advancing it.
func (d *Dispatcher) Status(ctx context.Context, id string) (Snapshot, error) {
	job, err := d.store.Load(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return SnapshotOf(job), nil
}

// Job returns a copy of the stored record.
func (d *Dispatcher) Job(ctx context.Context, id string) (*Job, error) {
	return d.store.Load(ctx, id)
}

// Cancel deletes the job. A step already in flight fails to save and any
// later step returns ErrNotFound. Side effects already committed stay.
func (d *Dispatcher) Cancel(ctx context.Context, id string) error {
	if err := d.store.Delete(ctx, id); err != nil {
		return err
	}
	d.logger.Info("job cancelled", "job_id", id)
	return nil
}

// run resolves the handler and processes one chunk, turning panics into errors.
func (d *Dispatcher) run(ctx context.Context, log *slog.Logger, job *Job) (next *Job, out Outcome, err error) {
	h, err := d.registry.Lookup(job.Operation)
	if err != nil {
		return nil, out, err
	}

	if d.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.stepTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panic",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			next = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	result, out, err := h.Process(ctx, *job.Clone())
	if err != nil {
		return nil, out, err
	}
	next, err = d.settle(job, &result, out)
	return next, out, err
}

// settle enforces the record invariants on a handler result.
func (d *Dispatcher) settle(prev, next *Job, out Outcome) (*Job, error) {
	if next.Done < prev.Done {
		return nil, fmt.Errorf("progress went backwards: %d -> %d", prev.Done, next.Done)
	}

	// Identity and options belong to the dispatcher.
	next.ID = prev.ID
	next.Operation = prev.Operation
	next.Data = prev.Data
	next.CreatedAt = prev.CreatedAt
	next.Revision = prev.Revision
	next.ExpiresAt = prev.ExpiresAt
	if next.Context == nil {
		next.Context = Values{}
	}

	if next.Errors.Count < prev.Errors.Count {
		next.Errors.Count = prev.Errors.Count
	}
	if len(next.Errors.Sample) > d.sampleSize {
		next.Errors.Sample = next.Errors.Sample[:d.sampleSize]
	}

	switch {
	case out.Exhausted || next.Status == StatusDone:
		next.Status = StatusDone
		next.Total = next.Done
		if next.Message == "" || next.Message == prev.Message {
			next.Message = out.Message
		}
		if next.Message == "" {
			next.Message = fmt.Sprintf("Processed %d items", next.Done)
		}
	case next.Status == StatusError:
	default:
		next.Status = StatusRunning
		if next.Done > next.Total {
			next.Total = next.Done
		}
	}
	return next, nil
}

// failed returns prev marked as errored. Progress from before the failed
// chunk is kept so the client can see how far the job got.
func (d *Dispatcher) failed(prev *Job, err error) *Job {
	j := prev.Clone()
	j.Status = StatusError
	j.Message = fmt.Sprintf("Failed after %d of %d items: %v", prev.Done, prev.Total, err)
	return j
}

func (d *Dispatcher) normalize(opts Options) (Options, error) {
	switch {
	case opts.Limit < 0:
		return opts, fmt.Errorf("%w: limit must not be negative", ErrInvalidOptions)
	case opts.Limit == 0:
		opts.Limit = d.defaultLimit
	case opts.Limit > d.maxLimit:
		opts.Limit = d.maxLimit
	}

	switch opts.Delimiter {
	case "", `\t`, "tab":
	default:
		if r := []rune(opts.Delimiter); len(r) != 1 || !validDelimiter(r[0]) {
			return opts, fmt.Errorf("%w: delimiter %q is not a usable CSV separator", ErrInvalidOptions, opts.Delimiter)
		}
	}
	if opts.Delimiter == "" {
		opts.Delimiter = ","
	}
	return opts, nil
}

// validDelimiter mirrors the separators encoding/csv accepts.
func validDelimiter(r rune) bool {
	return r != 0 && r != '"' && r != '\r' && r != '\n' &&
		utf8.ValidRune(r) && r != utf8.RuneError
}
