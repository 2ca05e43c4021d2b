package handler

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/JonMunkholm/chunkjob/internal/catalog"
	"github.com/JonMunkholm/chunkjob/internal/core"
	"github.com/JonMunkholm/chunkjob/internal/csvfile"
	"github.com/JonMunkholm/chunkjob/internal/schema"
)

// byteKey holds the file offset of the next unread row.
const byteKey = "byte"

// Import reads a CSV file at Options.Path and upserts every valid row.
// Rows that fail validation or violate a constraint are counted as errors
// and skipped.
type Import struct {
	base
}

func (h *Import) Validate(opts core.Options) error {
	if err := requirePath(opts); err != nil {
		return err
	}
	mapping, err := h.mapping(opts)
	if err != nil {
		return err
	}

	info, err := os.Stat(opts.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no such file: %s", opts.Path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", opts.Path)
	}
	if info.Size() == 0 {
		return csvfile.ErrEmptyFile
	}

	headers, _, err := csvfile.ReadHeader(opts.Path, opts.Comma())
	if err != nil {
		return err
	}
	_, err = schema.ValidateHeaders(h.entity, headers, mapping)
	return err
}

func (h *Import) Total(_ context.Context, opts core.Options) (int, error) {
	return csvfile.CountRows(opts.Path, opts.Comma())
}

func (h *Import) StartMessage(_ core.Options, total int) string {
	return fmt.Sprintf("Importing %d %s", total, h.entity.Noun(total))
}

func (h *Import) Process(ctx context.Context, job core.Job) (core.Job, core.Outcome, error) {
	mapping, err := h.mapping(job.Data)
	if err != nil {
		return job, core.Outcome{}, err
	}
	path := job.Data.Path
	comma := job.Data.Comma()

	headers, start, err := csvfile.ReadHeader(path, comma)
	if err != nil {
		return job, core.Outcome{}, err
	}
	idx, err := schema.ValidateHeaders(h.entity, headers, mapping)
	if err != nil {
		return job, core.Outcome{}, err
	}

	// field name -> column position
	pos := make(map[string]int, len(mapping))
	for field, header := range mapping {
		if i, ok := idx[strings.ToLower(header)]; ok {
			pos[field] = i
		}
	}

	return core.RunChunk(ctx, job, core.Chunk[[]string]{
		Start: func(_ context.Context, j *core.Job) error {
			j.Context.SetInt64(byteKey, start)
			h.logger(*j).Info("import started", "path", path, "columns", len(pos))
			return nil
		},
		Fetch: func(_ context.Context, j *core.Job, _, limit int) ([][]string, error) {
			rows, next, err := csvfile.ReadChunk(path, comma, j.Context.Int64(byteKey), limit)
			if err != nil {
				return nil, err
			}
			j.Context.SetInt64(byteKey, next)
			return rows, nil
		},
		Apply: func(ctx context.Context, _ *core.Job, row []string) error {
			rec := make(catalog.Record, len(pos))
			for field, i := range pos {
				if i < len(row) {
					rec[field] = row[i]
				}
			}
			schema.Normalize(h.entity, rec)
			if err := schema.ValidateRecord(h.entity, rec); err != nil {
				return core.SkipItem(err)
			}
			schema.CanonicalRecord(h.entity, rec)
			if err := h.deps.Writer.Insert(ctx, h.entity.Name, rec); err != nil {
				if constraintViolation(err) {
					return core.SkipItem(err)
				}
				return err
			}
			return nil
		},
		Finish: func(j *core.Job, _ core.Outcome) string {
			imported := j.Done - j.Errors.Count
			if j.Errors.Count == 0 {
				return fmt.Sprintf("Imported %d %s", imported, h.entity.Noun(imported))
			}
			return fmt.Sprintf("Imported %d of %d %s (%d errors)",
				imported, j.Done, h.entity.Noun(j.Done), j.Errors.Count)
		},
	})
}
