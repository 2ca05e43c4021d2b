package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// fakeStore is a minimal in-package Store with the same revision semantics
// as the real backends.
type fakeStore struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	saves   int
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*Job)}
}

func (s *fakeStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.Revision = 1
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *fakeStore) Load(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *fakeStore) Save(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cur, ok := s.jobs[j.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Revision != j.Revision {
		return ErrConflict
	}
	j.Revision++
	s.jobs[j.ID] = j.Clone()
	s.saves++
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *fakeStore) DeleteExpired(context.Context) (int, error) {
	return 0, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// sliceHandler walks a shared slice of ints and records every item it
// writes, standing in for a CSV or index sink.
type sliceHandler struct {
	mu      sync.Mutex
	items   []int
	written []int
	bad     map[int]bool // items that fail per-item
	failAt  int          // offset at which Fetch fails; -1 disables
	panicAt int          // Apply panics on items above this value; -1 disables
	block   chan struct{}
	entered chan struct{}
	onFetch func() // runs before every Fetch
}

func newSliceHandler(n int) *sliceHandler {
	items := make([]int, n)
	for i := range items {
		items[i] = i + 1
	}
	return &sliceHandler{items: items, failAt: -1, panicAt: -1, bad: map[int]bool{}}
}

func (h *sliceHandler) resize(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = h.items[:0]
	for i := 1; i <= n; i++ {
		h.items = append(h.items, i)
	}
}

func (h *sliceHandler) writes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.written)
}

func (h *sliceHandler) Validate(opts Options) error {
	if opts.Entity == "bad" {
		return errors.New("bad entity")
	}
	return nil
}

func (h *sliceHandler) Total(context.Context, Options) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items), nil
}

func (h *sliceHandler) Process(ctx context.Context, job Job) (Job, Outcome, error) {
	return RunChunk(ctx, job, Chunk[int]{
		Fetch: func(ctx context.Context, _ *Job, offset, limit int) ([]int, error) {
			if h.onFetch != nil {
				h.onFetch()
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("fetch offset %d: %w", offset, err)
				}
			}
			if h.failAt >= 0 && offset >= h.failAt {
				return nil, errors.New("connection reset by peer")
			}
			h.mu.Lock()
			defer h.mu.Unlock()
			if offset >= len(h.items) {
				return nil, nil
			}
			end := min(offset+limit, len(h.items))
			return append([]int(nil), h.items[offset:end]...), nil
		},
		Apply: func(_ context.Context, _ *Job, item int) error {
			if h.entered != nil {
				h.entered <- struct{}{}
				<-h.block
			}
			if h.panicAt >= 0 && item > h.panicAt {
				panic("boom")
			}
			if h.bad[item] {
				return SkipItem(fmt.Errorf("item %d rejected", item))
			}
			h.mu.Lock()
			h.written = append(h.written, item)
			h.mu.Unlock()
			return nil
		},
		Finish: func(j *Job, _ Outcome) string {
			return fmt.Sprintf("Wrote %d items", j.Done-j.Errors.Count)
		},
	})
}

func newTestDispatcher(h Handler, store Store, opts ...Option) *Dispatcher {
	reg := NewRegistry()
	reg.Register("test.op", func() Handler { return h })
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewDispatcher(reg, store, opts...)
}

// =============================================================================
// Create
// =============================================================================

func TestCreate(t *testing.T) {
	ctx := context.Background()
	h := newSliceHandler(25)
	store := newFakeStore()
	d := newTestDispatcher(h, store)

	snap, err := d.Create(ctx, "test.op", Options{Limit: 10})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if snap.ID == "" {
		t.Error("Create() returned empty id")
	}
	if snap.Total != 25 || snap.Done != 0 || snap.Percent != 0 {
		t.Errorf("Create() = total %d done %d percent %d, want 25/0/0", snap.Total, snap.Done, snap.Percent)
	}
	if snap.Status != StatusRunning {
		t.Errorf("Create() status = %q, want running", snap.Status)
	}

	job, err := store.Load(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if job.Context.Int(OffsetKey) != 0 {
		t.Errorf("offset = %d, want 0", job.Context.Int(OffsetKey))
	}
	if job.Data.Delimiter != "," {
		t.Errorf("delimiter = %q, want default ','", job.Data.Delimiter)
	}
	if snap.Message != "Queued 25 items" {
		t.Errorf("Create() message = %q, want %q", snap.Message, "Queued 25 items")
	}
}

// announcingHandler describes its jobs at creation.
type announcingHandler struct{ *sliceHandler }

func (announcingHandler) StartMessage(opts Options, total int) string {
	return fmt.Sprintf("Writing %d items with %q", total, opts.Delimiter)
}

func TestCreateStartMessage(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	d := newTestDispatcher(announcingHandler{newSliceHandler(25)}, store)

	snap, err := d.Create(ctx, "test.op", Options{Limit: 10, Delimiter: ";"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	want := `Writing 25 items with ";"`
	if snap.Message != want {
		t.Errorf("Create() message = %q, want %q", snap.Message, want)
	}

	// Running steps keep the start message; the finish message replaces it.
	snap, _ = d.Step(ctx, snap.ID)
	if snap.Status != StatusRunning || snap.Message != want {
		t.Errorf("running Step() = %q %q, want running %q", snap.Status, snap.Message, want)
	}
	for snap.Status == StatusRunning {
		if snap, err = d.Step(ctx, snap.ID); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}
	if snap.Message != "Wrote 25 items" {
		t.Errorf("final message = %q, want %q", snap.Message, "Wrote 25 items")
	}
}

func TestCreateFailuresPersistNothing(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		opts      Options
		wantErr   error
	}{
		{"unknown operation", "nope", Options{}, ErrUnknownOperation},
		{"negative limit", "test.op", Options{Limit: -1}, ErrInvalidOptions},
		{"multi-char delimiter", "test.op", Options{Delimiter: ";;"}, ErrInvalidOptions},
		{"invalid utf-8 delimiter", "test.op", Options{Delimiter: "\xff"}, ErrInvalidOptions},
		{"quote delimiter", "test.op", Options{Delimiter: `"`}, ErrInvalidOptions},
		{"newline delimiter", "test.op", Options{Delimiter: "\n"}, ErrInvalidOptions},
		{"handler rejects options", "test.op", Options{Entity: "bad"}, ErrInvalidOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			d := newTestDispatcher(newSliceHandler(5), store)

			_, err := d.Create(context.Background(), tt.operation, tt.opts)
			var ce *CreationError
			if !errors.As(err, &ce) {
				t.Fatalf("Create() error = %v, want *CreationError", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
			if store.count() != 0 {
				t.Errorf("store has %d jobs, want 0", store.count())
			}
		})
	}
}

func TestValidDelimiter(t *testing.T) {
	tests := []struct {
		name string
		r    rune
		want bool
	}{
		{"comma", ',', true},
		{"semicolon", ';', true},
		{"tab", '\t', true},
		{"pipe", '|', true},
		{"multibyte", '§', true},
		{"nul", 0, false},
		{"quote", '"', false},
		{"carriage return", '\r', false},
		{"newline", '\n', false},
		{"replacement char", utf8.RuneError, false},
		{"surrogate", 0xD800, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validDelimiter(tt.r); got != tt.want {
				t.Errorf("validDelimiter(%q) = %v, want %v", tt.r, got, tt.want)
			}
		})
	}
}

func TestCreateLimitDefaults(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, 50},
		{"within range kept", 7, 7},
		{"above max capped", 100000, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			d := newTestDispatcher(newSliceHandler(5), store, WithDefaultLimit(50), WithMaxLimit(200))

			snap, err := d.Create(context.Background(), "test.op", Options{Limit: tt.limit})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			job, _ := store.Load(context.Background(), snap.ID)
			if job.Data.Limit != tt.want {
				t.Errorf("limit = %d, want %d", job.Data.Limit, tt.want)
			}
		})
	}
}

// =============================================================================
// Step
// =============================================================================

func TestStepChunkCount(t *testing.T) {
	ctx := context.Background()
	h := newSliceHandler(25)
	d := newTestDispatcher(h, newFakeStore())

	snap, err := d.Create(ctx, "test.op", Options{Limit: 10})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var dones []int
	steps := 0
	for !snap.Terminal() {
		snap, err = d.Step(ctx, snap.ID)
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		steps++
		dones = append(dones, snap.Done)
		if steps > 10 {
			t.Fatal("job did not terminate")
		}
	}

	if steps != 3 {
		t.Errorf("steps = %d, want 3", steps)
	}
	want := []int{10, 20, 25}
	for i := range want {
		if i >= len(dones) || dones[i] != want[i] {
			t.Fatalf("done sequence = %v, want %v", dones, want)
		}
	}
	if snap.Status != StatusDone || snap.Percent != 100 {
		t.Errorf("final = %q %d%%, want done 100%%", snap.Status, snap.Percent)
	}
	if snap.Message != "Wrote 25 items" {
		t.Errorf("message = %q", snap.Message)
	}
	if h.writes() != 25 {
		t.Errorf("writes = %d, want 25", h.writes())
	}
}

func TestStepExactMultipleNeedsEmptyChunk(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(newSliceHandler(20), newFakeStore())

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	steps := 0
	for !snap.Terminal() {
		var err error
		if snap, err = d.Step(ctx, snap.ID); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		steps++
	}

	// ceil(20/10) + 1
	if steps != 3 {
		t.Errorf("steps = %d, want 3", steps)
	}
	if snap.Done != 20 || snap.Total != 20 {
		t.Errorf("done/total = %d/%d, want 20/20", snap.Done, snap.Total)
	}
}

func TestStepEmptyDataset(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(newSliceHandler(0), newFakeStore())

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	if snap.Percent != 100 {
		t.Errorf("percent for empty job = %d, want 100", snap.Percent)
	}

	snap, err := d.Step(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if snap.Status != StatusDone || snap.Done != 0 {
		t.Errorf("Step() = %q done %d, want done 0", snap.Status, snap.Done)
	}
}

func TestStepProgressMonotonic(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(newSliceHandler(97), newFakeStore())

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 7})
	prevDone, prevPct := 0, 0
	for !snap.Terminal() {
		var err error
		if snap, err = d.Step(ctx, snap.ID); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		if snap.Done < prevDone || snap.Percent < prevPct {
			t.Fatalf("progress went backwards: %d/%d%% after %d/%d%%", snap.Done, snap.Percent, prevDone, prevPct)
		}
		if snap.Done > snap.Total {
			t.Fatalf("done %d exceeds total %d", snap.Done, snap.Total)
		}
		prevDone, prevPct = snap.Done, snap.Percent
	}
}

func TestStepTerminalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newSliceHandler(5)
	store := newFakeStore()
	d := newTestDispatcher(h, store)

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	final, err := d.Step(ctx, snap.ID)
	if err != nil || final.Status != StatusDone {
		t.Fatalf("Step() = %v, %v; want done", final.Status, err)
	}

	writes, saves := h.writes(), store.saves
	for i := 0; i < 3; i++ {
		again, err := d.Step(ctx, snap.ID)
		if err != nil {
			t.Fatalf("Step() on terminal job error = %v", err)
		}
		if again.Done != final.Done || again.Status != final.Status || again.Message != final.Message {
			t.Errorf("terminal snapshot changed: %+v -> %+v", final, again)
		}
	}
	if h.writes() != writes {
		t.Errorf("sink writes = %d after terminal steps, want %d", h.writes(), writes)
	}
	if store.saves != saves {
		t.Errorf("store saves = %d after terminal steps, want %d", store.saves, saves)
	}
}

func TestStepShrinkingDataset(t *testing.T) {
	ctx := context.Background()
	h := newSliceHandler(30)
	d := newTestDispatcher(h, newFakeStore())

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	snap, _ = d.Step(ctx, snap.ID)
	h.resize(15)

	steps := 1
	for !snap.Terminal() {
		var err error
		if snap, err = d.Step(ctx, snap.ID); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		steps++
	}

	// ceil(30/10) + 1 is the bound for the original size.
	if steps > 4 {
		t.Errorf("steps = %d, want at most 4", steps)
	}
	if snap.Done != 15 || snap.Total != 15 {
		t.Errorf("done/total = %d/%d, want 15/15", snap.Done, snap.Total)
	}
	if snap.Percent != 100 {
		t.Errorf("percent = %d, want 100", snap.Percent)
	}
}

func TestStepGrowingDatasetRaisesTotal(t *testing.T) {
	ctx := context.Background()
	h := newSliceHandler(10)
	d := newTestDispatcher(h, newFakeStore())

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	h.resize(25)

	snap, _ = d.Step(ctx, snap.ID)
	snap, _ = d.Step(ctx, snap.ID)
	if snap.Status != StatusRunning {
		t.Fatalf("status = %q, want running", snap.Status)
	}
	if snap.Done != 20 || snap.Total != 20 {
		t.Errorf("done/total = %d/%d, want total raised to 20", snap.Done, snap.Total)
	}
	if snap.Percent != 100 {
		t.Errorf("percent = %d, want capped 100", snap.Percent)
	}
}

func TestStepItemErrorsAccumulate(t *testing.T) {
	ctx := context.Background()
	h := newSliceHandler(20)
	h.bad = map[int]bool{3: true, 11: true, 19: true}
	d := newTestDispatcher(h, newFakeStore(), WithErrorSampleSize(2))

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 8})
	for !snap.Terminal() {
		var err error
		if snap, err = d.Step(ctx, snap.ID); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}

	if snap.Status != StatusDone {
		t.Errorf("status = %q, want done", snap.Status)
	}
	if snap.Errors.Count != 3 {
		t.Errorf("errors.count = %d, want 3", snap.Errors.Count)
	}
	if len(snap.Errors.Sample) != 2 {
		t.Errorf("errors.sample = %v, want 2 entries", snap.Errors.Sample)
	}
	if h.writes() != 17 {
		t.Errorf("writes = %d, want 17", h.writes())
	}
	if snap.Message != "Wrote 17 items" {
		t.Errorf("message = %q", snap.Message)
	}
}

func TestStepHandlerErrorKeepsProgress(t *testing.T) {
	ctx := context.Background()
	h := newSliceHandler(30)
	h.failAt = 10
	store := newFakeStore()
	d := newTestDispatcher(h, store)

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	snap, _ = d.Step(ctx, snap.ID)

	snap, err := d.Step(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Step() error = %v, handler errors must not escape", err)
	}
	if snap.Status != StatusError {
		t.Errorf("status = %q, want error", snap.Status)
	}
	if snap.Done != 10 {
		t.Errorf("done = %d, want 10 preserved", snap.Done)
	}
	if snap.Message == "" {
		t.Error("error job has empty message")
	}

	job, _ := store.Load(ctx, snap.ID)
	if job.Context.Int(OffsetKey) != 10 {
		t.Errorf("offset = %d, want 10 preserved", job.Context.Int(OffsetKey))
	}

	// Error is terminal.
	again, _ := d.Step(ctx, snap.ID)
	if again.Status != StatusError || again.Done != 10 {
		t.Errorf("terminal error job changed: %+v", again)
	}
}

// A request that goes away mid-chunk leaves the job at its checkpoint.
func TestStepCallerCancelKeepsCheckpoint(t *testing.T) {
	h := newSliceHandler(30)
	store := newFakeStore()
	d := newTestDispatcher(h, store)

	snap, _ := d.Create(context.Background(), "test.op", Options{Limit: 10})
	if _, err := d.Step(context.Background(), snap.ID); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	before, _ := store.Load(context.Background(), snap.ID)
	saves := store.saves

	reqCtx, cancel := context.WithCancel(context.Background())
	h.onFetch = cancel
	if _, err := d.Step(reqCtx, snap.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("Step() error = %v, want context.Canceled", err)
	}
	h.onFetch = nil

	after, _ := store.Load(context.Background(), snap.ID)
	if store.saves != saves {
		t.Errorf("saves = %d, want %d", store.saves, saves)
	}
	if after.Status != StatusRunning || after.Done != 10 || after.Message != before.Message {
		t.Errorf("job after abandoned step = %q done %d %q, want running done 10 %q",
			after.Status, after.Done, after.Message, before.Message)
	}
	if after.Context.Int(OffsetKey) != 10 {
		t.Errorf("offset = %d, want 10", after.Context.Int(OffsetKey))
	}

	got, err := d.Step(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("resumed Step() error = %v", err)
	}
	if got.Status != StatusRunning || got.Done != 20 {
		t.Errorf("resumed Step() = %q done %d, want running done 20", got.Status, got.Done)
	}
	if h.writes() != 20 {
		t.Errorf("writes = %d, want 20", h.writes())
	}
}

func TestStepHandlerPanicIsContained(t *testing.T) {
	ctx := context.Background()
	h := newSliceHandler(30)
	h.panicAt = 15
	d := newTestDispatcher(h, newFakeStore())

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	snap, _ = d.Step(ctx, snap.ID)

	snap, err := d.Step(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if snap.Status != StatusError {
		t.Errorf("status = %q, want error", snap.Status)
	}
	if snap.Done != 10 {
		t.Errorf("done = %d, want 10", snap.Done)
	}
	if MapError(errors.New(snap.Message)).Code != "JOB005" {
		t.Errorf("message %q does not mention the panic", snap.Message)
	}
}

func TestStepNotFound(t *testing.T) {
	d := newTestDispatcher(newSliceHandler(1), newFakeStore())

	_, err := d.Step(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Step() error = %v, want ErrNotFound", err)
	}
}

func TestStepConflictReportsBusy(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	d := newTestDispatcher(newSliceHandler(30), store)

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	store.saveErr = ErrConflict

	_, err := d.Step(ctx, snap.ID)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("Step() error = %v, want ErrBusy", err)
	}
}

func TestConcurrentStepsOneBusy(t *testing.T) {
	ctx := context.Background()
	h := newSliceHandler(30)
	h.entered = make(chan struct{})
	h.block = make(chan struct{})
	store := newFakeStore()
	d := newTestDispatcher(h, store, WithLocker(NewKeyedLocker(0)))

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 1})

	type result struct {
		snap Snapshot
		err  error
	}
	first := make(chan result, 1)
	go func() {
		s, err := d.Step(ctx, snap.ID)
		first <- result{s, err}
	}()

	// First step is now inside Apply holding the lock.
	<-h.entered

	_, err := d.Step(ctx, snap.ID)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("second Step() error = %v, want ErrBusy", err)
	}

	close(h.block)
	r := <-first
	if r.err != nil {
		t.Fatalf("first Step() error = %v", r.err)
	}
	if r.snap.Done != 1 {
		t.Errorf("first Step() done = %d, want 1", r.snap.Done)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want exactly one mutation", store.saves)
	}
}

// slowHandler blocks until its context is done.
type slowHandler struct{}

func (slowHandler) Validate(Options) error                      { return nil }
func (slowHandler) Total(context.Context, Options) (int, error) { return 5, nil }
func (slowHandler) Process(ctx context.Context, job Job) (Job, Outcome, error) {
	<-ctx.Done()
	return job, Outcome{}, ctx.Err()
}

func TestStepTimeoutFailsJob(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(slowHandler{}, newFakeStore(), WithStepTimeout(10*time.Millisecond))

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	snap, err := d.Step(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if snap.Status != StatusError {
		t.Errorf("status = %q, want error after step timeout", snap.Status)
	}
	if snap.Done != 0 {
		t.Errorf("done = %d, want 0", snap.Done)
	}
}

// =============================================================================
// Cancel / Status
// =============================================================================

func TestCancel(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(newSliceHandler(30), newFakeStore())

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	if _, err := d.Step(ctx, snap.ID); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	if err := d.Cancel(ctx, snap.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := d.Step(ctx, snap.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Step() after cancel error = %v, want ErrNotFound", err)
	}
	if err := d.Cancel(ctx, snap.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Cancel() error = %v, want ErrNotFound", err)
	}
}

func TestStatusDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	h := newSliceHandler(30)
	d := newTestDispatcher(h, newFakeStore())

	snap, _ := d.Create(ctx, "test.op", Options{Limit: 10})
	for i := 0; i < 3; i++ {
		got, err := d.Status(ctx, snap.ID)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if got.Done != 0 {
			t.Errorf("Status() done = %d, want 0", got.Done)
		}
	}
	if h.writes() != 0 {
		t.Errorf("writes = %d, want 0", h.writes())
	}
}
