// Package storetest holds the behaviour every core.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/chunkjob/internal/core"
)

// NewJob returns a fresh running job with a random id.
func NewJob() *core.Job {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &core.Job{
		ID:        uuid.NewString(),
		Operation: "export.product",
		Status:    core.StatusRunning,
		Total:     25,
		Context:   core.Values{core.OffsetKey: "0"},
		Data: core.Options{
			Entity:    "product",
			Limit:     10,
			Path:      "/tmp/products.csv",
			Delimiter: ",",
			Fields:    []core.Field{{Header: "SKU", Name: "sku"}},
			Filter:    map[string]string{"status": "active"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Run exercises a store built by newStore. Each subtest gets its own store.
func Run(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateLoad", func(t *testing.T) {
		s := newStore(t)
		j := NewJob()
		if err := s.Create(ctx, j); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if j.Revision != 1 {
			t.Errorf("Revision = %d after Create, want 1", j.Revision)
		}
		if j.ExpiresAt.IsZero() {
			t.Error("ExpiresAt not set by Create")
		}

		got, err := s.Load(ctx, j.ID)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.ID != j.ID || got.Operation != j.Operation || got.Total != 25 || got.Status != core.StatusRunning {
			t.Errorf("Load() = %+v, want %+v", got, j)
		}
		if got.Data.Limit != 10 || got.Data.Path != j.Data.Path || got.Data.Filter["status"] != "active" {
			t.Errorf("Load() data = %+v", got.Data)
		}
		if len(got.Data.Fields) != 1 || got.Data.Fields[0].Name != "sku" {
			t.Errorf("Load() fields = %+v", got.Data.Fields)
		}
		if got.Context.Int(core.OffsetKey) != 0 {
			t.Errorf("Load() offset = %d", got.Context.Int(core.OffsetKey))
		}
	})

	t.Run("LoadMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Load(ctx, uuid.NewString()); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("Load() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("SaveRoundTrip", func(t *testing.T) {
		s := newStore(t)
		j := NewJob()
		if err := s.Create(ctx, j); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		j.Done = 10
		j.Context.SetInt(core.OffsetKey, 10)
		j.Context["byte"] = "512"
		j.Errors = core.ErrorLog{Count: 2, Sample: []string{"row 3: bad", "row 7: bad"}}
		j.Message = "halfway"
		if err := s.Save(ctx, j); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if j.Revision != 2 {
			t.Errorf("Revision = %d after Save, want 2", j.Revision)
		}

		got, err := s.Load(ctx, j.ID)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Done != 10 || got.Context.Int(core.OffsetKey) != 10 || got.Context["byte"] != "512" {
			t.Errorf("Load() = done %d context %v", got.Done, got.Context)
		}
		if got.Errors.Count != 2 || len(got.Errors.Sample) != 2 {
			t.Errorf("Load() errors = %+v", got.Errors)
		}
		if got.Message != "halfway" || got.Revision != 2 {
			t.Errorf("Load() message %q revision %d", got.Message, got.Revision)
		}
	})

	t.Run("SaveConflict", func(t *testing.T) {
		s := newStore(t)
		j := NewJob()
		if err := s.Create(ctx, j); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		a, _ := s.Load(ctx, j.ID)
		b, _ := s.Load(ctx, j.ID)

		a.Done = 10
		if err := s.Save(ctx, a); err != nil {
			t.Fatalf("first Save() error = %v", err)
		}
		b.Done = 20
		if err := s.Save(ctx, b); !errors.Is(err, core.ErrConflict) {
			t.Errorf("stale Save() error = %v, want ErrConflict", err)
		}

		got, _ := s.Load(ctx, j.ID)
		if got.Done != 10 {
			t.Errorf("Done = %d, stale write must not land", got.Done)
		}
	})

	t.Run("SaveMissing", func(t *testing.T) {
		s := newStore(t)
		j := NewJob()
		j.Revision = 1
		err := s.Save(ctx, j)
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("Save() on missing job error = %v, want ErrNotFound", err)
		}
	})

	t.Run("LoadReturnsCopy", func(t *testing.T) {
		s := newStore(t)
		j := NewJob()
		if err := s.Create(ctx, j); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, _ := s.Load(ctx, j.ID)
		got.Context["offset"] = "99"
		got.Done = 99

		again, _ := s.Load(ctx, j.ID)
		if again.Done != 0 || again.Context.Int(core.OffsetKey) != 0 {
			t.Error("mutating a loaded job changed the stored record")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		j := NewJob()
		if err := s.Create(ctx, j); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if err := s.Delete(ctx, j.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Load(ctx, j.ID); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, j.ID); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("second Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("SaveSlidesExpiry", func(t *testing.T) {
		s := newStore(t)
		j := NewJob()
		if err := s.Create(ctx, j); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		first := j.ExpiresAt

		time.Sleep(5 * time.Millisecond)
		if err := s.Save(ctx, j); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if !j.ExpiresAt.After(first) {
			t.Errorf("ExpiresAt = %v after Save, want later than %v", j.ExpiresAt, first)
		}
	})
}
