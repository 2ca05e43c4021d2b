package handler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/JonMunkholm/chunkjob/internal/catalog"
	"github.com/JonMunkholm/chunkjob/internal/core"
	"github.com/JonMunkholm/chunkjob/internal/csvfile"
)

// sizeKey holds the byte size of the export file after the last flushed chunk.
const sizeKey = "size"

// Export writes an entity's records to a CSV file at Options.Path.
// The first chunk truncates the file and writes the header row.
type Export struct {
	base
}

func (h *Export) Validate(opts core.Options) error {
	if err := requirePath(opts); err != nil {
		return err
	}
	if _, err := h.columns(opts); err != nil {
		return err
	}
	return h.checkFilter(opts.Filter)
}

func (h *Export) Total(ctx context.Context, opts core.Options) (int, error) {
	return h.deps.Source.Count(ctx, h.entity.Name, opts.Filter)
}

func (h *Export) StartMessage(opts core.Options, total int) string {
	return fmt.Sprintf("Exporting %d %s to %s", total, h.entity.Noun(total), filepath.Base(opts.Path))
}

func (h *Export) Process(ctx context.Context, job core.Job) (core.Job, core.Outcome, error) {
	cols, err := h.columns(job.Data)
	if err != nil {
		return job, core.Outcome{}, err
	}
	path := job.Data.Path
	comma := job.Data.Comma()
	var rows [][]string

	return core.RunChunk(ctx, job, core.Chunk[catalog.Record]{
		Start: func(_ context.Context, j *core.Job) error {
			if err := csvfile.Truncate(path); err != nil {
				return err
			}
			header := make([]string, len(cols))
			for i, c := range cols {
				header[i] = c.Header
			}
			size, err := csvfile.AppendAt(path, 0, [][]string{header}, comma)
			if err != nil {
				return err
			}
			j.Context.SetInt64(sizeKey, size)
			h.logger(*j).Info("export started", "path", path, "columns", len(cols))
			return nil
		},
		Fetch: func(ctx context.Context, _ *core.Job, offset, limit int) ([]catalog.Record, error) {
			return h.deps.Source.Slice(ctx, h.entity.Name, job.Data.Filter, offset, limit)
		},
		Apply: func(_ context.Context, _ *core.Job, rec catalog.Record) error {
			row := make([]string, len(cols))
			for i, c := range cols {
				row[i] = rec[c.Name]
			}
			rows = append(rows, row)
			return nil
		},
		Flush: func(_ context.Context, j *core.Job) error {
			size, err := csvfile.AppendAt(path, j.Context.Int64(sizeKey), rows, comma)
			if err != nil {
				return err
			}
			j.Context.SetInt64(sizeKey, size)
			return nil
		},
		Finish: func(j *core.Job, _ core.Outcome) string {
			return fmt.Sprintf("Exported %d %s to %s", j.Done, h.entity.Noun(j.Done), filepath.Base(path))
		},
	})
}
