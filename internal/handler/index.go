package handler

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/chunkjob/internal/catalog"
	"github.com/JonMunkholm/chunkjob/internal/core"
)

// Index rebuilds the search documents of an entity. The first chunk clears
// the existing documents.
type Index struct {
	base
}

func (h *Index) Validate(opts core.Options) error {
	return h.checkFilter(opts.Filter)
}

func (h *Index) Total(ctx context.Context, opts core.Options) (int, error) {
	return h.deps.Source.Count(ctx, h.entity.Name, opts.Filter)
}

func (h *Index) StartMessage(_ core.Options, total int) string {
	return fmt.Sprintf("Indexing %d %s", total, h.entity.Noun(total))
}

func (h *Index) Process(ctx context.Context, job core.Job) (core.Job, core.Outcome, error) {
	return core.RunChunk(ctx, job, core.Chunk[catalog.Record]{
		Start: func(ctx context.Context, j *core.Job) error {
			h.logger(*j).Info("clearing search documents", "entity", h.entity.Name)
			return h.deps.Indexer.Clear(ctx, h.entity.Name)
		},
		Fetch: func(ctx context.Context, _ *core.Job, offset, limit int) ([]catalog.Record, error) {
			return h.deps.Source.Slice(ctx, h.entity.Name, job.Data.Filter, offset, limit)
		},
		Apply: func(ctx context.Context, _ *core.Job, rec catalog.Record) error {
			key := rec.Key(h.entity)
			ok, err := h.deps.Indexer.Index(ctx, h.entity.Name, key)
			if err != nil {
				return err
			}
			if !ok {
				return core.SkipItem(fmt.Errorf("%s %q no longer exists", h.entity.Name, key))
			}
			return nil
		},
		Finish: func(j *core.Job, _ core.Outcome) string {
			n := j.Done - j.Errors.Count
			return fmt.Sprintf("Indexed %d %s", n, h.entity.Noun(n))
		},
	})
}
