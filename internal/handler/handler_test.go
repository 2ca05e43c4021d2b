package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/chunkjob/internal/catalog"
	"github.com/JonMunkholm/chunkjob/internal/core"
	"github.com/JonMunkholm/chunkjob/internal/search"
	"github.com/JonMunkholm/chunkjob/internal/store/memory"
)

// =============================================================================
// Test Fixtures
// =============================================================================

type env struct {
	cat   *catalog.Memory
	index *search.Memory
	disp  *core.Dispatcher
	dir   string
}

func newEnv(t *testing.T, deps Deps) *env {
	t.Helper()
	cat := catalog.NewMemory()
	idx := search.NewMemory(cat)
	if deps.Source == nil {
		deps.Source = cat
	}
	if deps.Writer == nil {
		deps.Writer = cat
	}
	if deps.Indexer == nil {
		deps.Indexer = idx
	}
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := core.NewRegistry()
	RegisterAll(reg, deps)

	return &env{
		cat:   cat,
		index: idx,
		disp:  core.NewDispatcher(reg, memory.New(), core.WithLogger(deps.Logger)),
		dir:   t.TempDir(),
	}
}

func seedProducts(t *testing.T, w catalog.Writer, n int) {
	t.Helper()
	for i := range n {
		rec := catalog.Record{
			"sku":            fmt.Sprintf("SKU-%03d", i),
			"name":           fmt.Sprintf("Product, %d", i),
			"category":       "mugs",
			"price":          fmt.Sprintf("%d.50", i),
			"status":         "active",
			"in_stock":       "true",
			"available_from": "2024-01-15",
		}
		if err := w.Insert(context.Background(), "product", rec); err != nil {
			t.Fatal(err)
		}
	}
}

// runToEnd steps the job until it is terminal and returns every snapshot.
func runToEnd(t *testing.T, d *core.Dispatcher, id string) []core.Snapshot {
	t.Helper()
	var snaps []core.Snapshot
	for range 100 {
		s, err := d.Step(context.Background(), id)
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		snaps = append(snaps, s)
		if s.Terminal() {
			return snaps
		}
	}
	t.Fatal("job did not terminate")
	return nil
}

func doneSeq(snaps []core.Snapshot) []int {
	out := make([]int, len(snaps))
	for i, s := range snaps {
		out[i] = s.Done
	}
	return out
}

func writeCSV(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "import.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// =============================================================================
// Registration
// =============================================================================

func TestRegisterAll(t *testing.T) {
	e := newEnv(t, Deps{})
	want := []string{
		"export.category", "export.product",
		"import.category", "import.product",
		"index.category", "index.product",
	}
	if got := e.disp.Registry().Operations(); !slices.Equal(got, want) {
		t.Errorf("Operations() = %v, want %v", got, want)
	}
}

// =============================================================================
// Export
// =============================================================================

func TestExportChunks(t *testing.T) {
	e := newEnv(t, Deps{})
	seedProducts(t, e.cat, 25)
	path := filepath.Join(e.dir, "out", "products.csv")

	snap, err := e.disp.Create(context.Background(), "export.product", core.Options{Path: path, Limit: 10})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if snap.Total != 25 {
		t.Errorf("Total = %d, want 25", snap.Total)
	}
	const started = "Exporting 25 products to products.csv"
	if snap.Message != started {
		t.Errorf("created Message = %q, want %q", snap.Message, started)
	}

	snaps := runToEnd(t, e.disp, snap.ID)
	if got := doneSeq(snaps); !slices.Equal(got, []int{10, 20, 25}) {
		t.Errorf("done sequence = %v, want [10 20 25]", got)
	}
	for _, s := range snaps[:len(snaps)-1] {
		if s.Message != started {
			t.Errorf("running Message = %q, want %q", s.Message, started)
		}
	}
	last := snaps[len(snaps)-1]
	if last.Status != core.StatusDone || last.Percent != 100 {
		t.Errorf("final = %+v", last)
	}
	if last.Message != "Exported 25 products to products.csv" {
		t.Errorf("Message = %q", last.Message)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 26 {
		t.Fatalf("file has %d lines, want 26", len(lines))
	}
	if lines[0] != "sku,name,category,price,status,in_stock,available_from,description" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != `SKU-000,"Product, 0",mugs,0.50,active,true,2024-01-15,` {
		t.Errorf("first row = %q", lines[1])
	}

	// Stepping a finished job writes nothing more.
	if _, err := e.disp.Step(context.Background(), snap.ID); err != nil {
		t.Fatal(err)
	}
	again, _ := os.ReadFile(path)
	if len(again) != len(data) {
		t.Error("terminal step touched the export file")
	}
}

func TestExportSelectedColumns(t *testing.T) {
	e := newEnv(t, Deps{})
	seedProducts(t, e.cat, 3)
	path := filepath.Join(e.dir, "skus.tsv")

	opts := core.Options{
		Path:      path,
		Delimiter: "tab",
		Fields:    []core.Field{{Header: "SKU", Name: "sku"}, {Name: "price"}},
	}
	snap, err := e.disp.Create(context.Background(), "export.product", opts)
	if err != nil {
		t.Fatal(err)
	}
	runToEnd(t, e.disp, snap.ID)

	data, _ := os.ReadFile(path)
	want := "SKU\tprice\nSKU-000\t0.50\nSKU-001\t1.50\nSKU-002\t2.50\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestExportEmptyWritesHeader(t *testing.T) {
	e := newEnv(t, Deps{})
	path := filepath.Join(e.dir, "categories.csv")

	snap, err := e.disp.Create(context.Background(), "export.category", core.Options{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	snaps := runToEnd(t, e.disp, snap.ID)
	if len(snaps) != 1 || snaps[0].Message != "Exported 0 categories to categories.csv" {
		t.Errorf("snapshots = %+v", snaps)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "slug,name,parent,position,visible,description\n" {
		t.Errorf("file = %q", data)
	}
}

func TestExportRetriedChunkNotDuplicated(t *testing.T) {
	e := newEnv(t, Deps{})
	seedProducts(t, e.cat, 15)
	path := filepath.Join(e.dir, "retry.csv")

	snap, err := e.disp.Create(context.Background(), "export.product", core.Options{Path: path, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.disp.Step(context.Background(), snap.ID); err != nil {
		t.Fatal(err)
	}
	job, err := e.disp.Job(context.Background(), snap.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Run the second chunk twice from the same saved state, as if the
	// first attempt's save had been lost.
	h, _ := e.disp.Registry().Lookup("export.product")
	for range 2 {
		if _, _, err := h.Process(context.Background(), *job); err != nil {
			t.Fatal(err)
		}
	}

	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "\n"); n != 16 {
		t.Errorf("file has %d lines, want 16", n)
	}
}

// =============================================================================
// Import
// =============================================================================

func TestImportSkipsInvalidRows(t *testing.T) {
	e := newEnv(t, Deps{})

	var b strings.Builder
	b.WriteString("\xEF\xBB\xBFSKU,Name,Price,Status\n")
	for i := range 20 {
		switch i {
		case 4:
			fmt.Fprintf(&b, "p-%d,,1.00,active\n", i) // missing name
		case 9:
			fmt.Fprintf(&b, "p-%d,Mug %d,cheap,active\n", i, i) // bad price
		case 15:
			fmt.Fprintf(&b, "p-%d,Mug %d,2.00,sold\n", i, i) // bad status
		default:
			fmt.Fprintf(&b, "p-%d,Mug %d,$1,299.00,ACTIVE\n", i, i)
		}
	}
	// Quote the thousands separator so the price stays one cell.
	content := strings.ReplaceAll(b.String(), "$1,299.00", `"$1,299.00"`)
	path := writeCSV(t, e.dir, content)

	snap, err := e.disp.Create(context.Background(), "import.product", core.Options{Path: path, Limit: 8})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if snap.Total != 20 {
		t.Errorf("Total = %d, want 20", snap.Total)
	}

	snaps := runToEnd(t, e.disp, snap.ID)
	if got := doneSeq(snaps); !slices.Equal(got, []int{8, 16, 20}) {
		t.Errorf("done sequence = %v", got)
	}
	last := snaps[len(snaps)-1]
	if last.Status != core.StatusDone {
		t.Fatalf("Status = %s (%s)", last.Status, last.Message)
	}
	if last.Errors.Count != 3 || len(last.Errors.Sample) != 3 {
		t.Errorf("Errors = %+v, want count 3", last.Errors)
	}
	if !strings.HasPrefix(last.Errors.Sample[0], "item 5: name") {
		t.Errorf("first error = %q", last.Errors.Sample[0])
	}
	if last.Message != "Imported 17 of 20 products (3 errors)" {
		t.Errorf("Message = %q", last.Message)
	}
	if n := e.cat.Len("product"); n != 17 {
		t.Errorf("catalog has %d products, want 17", n)
	}

	rec, ok := e.cat.Get("product", "P-0")
	if !ok || rec["price"] != "1299.00" || rec["status"] != "active" {
		t.Errorf("P-0 = %v", rec)
	}
}

func TestImportHeaderMapping(t *testing.T) {
	e := newEnv(t, Deps{})
	path := writeCSV(t, e.dir, "Handle\tTitle\tVisible\nmugs\tMugs\tyes\ncups\tCups\tno\n")

	opts := core.Options{
		Path:      path,
		Delimiter: `\t`,
		Fields: []core.Field{
			{Header: "Handle", Name: "slug"},
			{Header: "Title", Name: "name"},
			{Header: "Visible", Name: "visible"},
		},
	}
	snap, err := e.disp.Create(context.Background(), "import.category", opts)
	if err != nil {
		t.Fatal(err)
	}
	snaps := runToEnd(t, e.disp, snap.ID)
	if msg := snaps[len(snaps)-1].Message; msg != "Imported 2 categories" {
		t.Errorf("Message = %q", msg)
	}
	if rec, ok := e.cat.Get("category", "cups"); !ok || rec["name"] != "Cups" || rec["visible"] != "false" {
		t.Errorf("cups = %v", rec)
	}
}

func TestImportPartialMapping(t *testing.T) {
	e := newEnv(t, Deps{})
	path := writeCSV(t, e.dir, "sku,Title,price\np-1,Mug,9.99\np-2,Plate,4.50\n")

	opts := core.Options{
		Path:   path,
		Fields: []core.Field{{Header: "Title", Name: "name"}},
	}
	snap, err := e.disp.Create(context.Background(), "import.product", opts)
	if err != nil {
		t.Fatal(err)
	}
	snaps := runToEnd(t, e.disp, snap.ID)
	last := snaps[len(snaps)-1]
	if last.Errors.Count != 0 || last.Message != "Imported 2 products" {
		t.Fatalf("final = %+v", last)
	}
	rec, ok := e.cat.Get("product", "P-2")
	if !ok || rec["name"] != "Plate" || rec["price"] != "4.50" {
		t.Errorf("P-2 = %v", rec)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newEnv(t, Deps{})
	seedProducts(t, src.cat, 23)
	path := filepath.Join(src.dir, "roundtrip.csv")

	snap, err := src.disp.Create(context.Background(), "export.product", core.Options{Path: path, Limit: 7})
	if err != nil {
		t.Fatal(err)
	}
	runToEnd(t, src.disp, snap.ID)

	dst := newEnv(t, Deps{})
	snap, err = dst.disp.Create(context.Background(), "import.product", core.Options{Path: path, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	snaps := runToEnd(t, dst.disp, snap.ID)
	if last := snaps[len(snaps)-1]; last.Done != 23 || last.Errors.Count != 0 {
		t.Fatalf("import = %+v", last)
	}

	want, _ := src.cat.Slice(context.Background(), "product", nil, 0, 100)
	got, _ := dst.cat.Slice(context.Background(), "product", nil, 0, 100)
	if len(got) != len(want) {
		t.Fatalf("imported %d records, want %d", len(got), len(want))
	}
	for i := range want {
		for k, v := range want[i] {
			if got[i][k] != v {
				t.Errorf("record %d field %s = %q, want %q", i, k, got[i][k], v)
			}
		}
	}
}

type failingWriter struct {
	err error
}

func (w failingWriter) Insert(context.Context, string, catalog.Record) error {
	return w.err
}

func TestImportWriterErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus core.Status
		wantErrors int
	}{
		{"unique violation skipped", &pgconn.PgError{Code: "23505"}, core.StatusDone, 2},
		{"connection failure aborts", errors.New("connection refused"), core.StatusError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, Deps{Writer: failingWriter{err: tt.err}})
			path := writeCSV(t, e.dir, "slug,name\na,A\nb,B\n")

			snap, err := e.disp.Create(context.Background(), "import.category", core.Options{Path: path})
			if err != nil {
				t.Fatal(err)
			}
			snaps := runToEnd(t, e.disp, snap.ID)
			last := snaps[len(snaps)-1]
			if last.Status != tt.wantStatus || last.Errors.Count != tt.wantErrors {
				t.Errorf("final = %+v", last)
			}
			if tt.wantStatus == core.StatusError && last.Done != 0 {
				t.Errorf("Done = %d, want progress kept at 0", last.Done)
			}
		})
	}
}

// =============================================================================
// Index
// =============================================================================

func TestIndexRebuild(t *testing.T) {
	e := newEnv(t, Deps{})
	seedProducts(t, e.cat, 12)

	// A stale document from an earlier build must be cleared.
	_ = e.cat.Insert(context.Background(), "product", catalog.Record{"sku": "OLD", "name": "Old", "price": "1"})
	if _, err := e.index.Index(context.Background(), "product", "OLD"); err != nil {
		t.Fatal(err)
	}
	e.cat.Delete("product", "OLD")

	snap, err := e.disp.Create(context.Background(), "index.product", core.Options{Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	snaps := runToEnd(t, e.disp, snap.ID)
	if got := doneSeq(snaps); !slices.Equal(got, []int{5, 10, 12}) {
		t.Errorf("done sequence = %v", got)
	}
	if msg := snaps[len(snaps)-1].Message; msg != "Indexed 12 products" {
		t.Errorf("Message = %q", msg)
	}

	docs := e.index.Documents("product")
	if len(docs) != 12 {
		t.Errorf("%d documents, want 12", len(docs))
	}
	if docs["SKU-003"] != "Product, 3 mugs" {
		t.Errorf("document = %q", docs["SKU-003"])
	}
}

func TestIndexVanishedRecord(t *testing.T) {
	listed := catalog.NewMemory()
	seedProducts(t, listed, 3)
	stored := catalog.NewMemory()
	seedProducts(t, stored, 2)

	e := newEnv(t, Deps{Source: listed, Indexer: search.NewMemory(stored)})
	snap, err := e.disp.Create(context.Background(), "index.product", core.Options{})
	if err != nil {
		t.Fatal(err)
	}
	snaps := runToEnd(t, e.disp, snap.ID)
	last := snaps[len(snaps)-1]
	if last.Errors.Count != 1 || last.Message != "Indexed 2 products" {
		t.Errorf("final = %+v", last)
	}
}

// =============================================================================
// Validation
// =============================================================================

func TestCreateValidation(t *testing.T) {
	e := newEnv(t, Deps{})
	empty := filepath.Join(e.dir, "empty.csv")
	_ = os.WriteFile(empty, nil, 0o644)
	partial := filepath.Join(e.dir, "partial.csv")
	_ = os.WriteFile(partial, []byte("sku,name\nA,B\n"), 0o644)

	tests := []struct {
		name string
		op   string
		opts core.Options
		want string
	}{
		{"export without path", "export.product", core.Options{}, "path is required"},
		{"export unknown field", "export.product", core.Options{Path: "x.csv", Fields: []core.Field{{Name: "colour"}}}, "unknown field"},
		{"export unknown filter", "export.category", core.Options{Path: "x.csv", Filter: map[string]string{"colour": "red"}}, "unknown field"},
		{"import missing file", "import.product", core.Options{Path: filepath.Join(e.dir, "nope.csv")}, "no such file"},
		{"import empty file", "import.product", core.Options{Path: empty}, "empty file"},
		{"import missing column", "import.product", core.Options{Path: partial}, "missing required column: price"},
		{"index unknown filter", "index.product", core.Options{Filter: map[string]string{"colour": "red"}}, "unknown field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.disp.Create(context.Background(), tt.op, tt.opts)
			if !errors.Is(err, core.ErrInvalidOptions) {
				t.Fatalf("Create() error = %v, want ErrInvalidOptions", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Create() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
