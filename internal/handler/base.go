// Package handler implements the catalog job operations: CSV export, CSV
// import and search index rebuild, one of each per catalog entity.
//
// Handlers are stateless. Each Process call builds a core.Chunk over the
// job's options and resumption context and lets core.RunChunk drive it.
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/chunkjob/internal/catalog"
	"github.com/JonMunkholm/chunkjob/internal/core"
	"github.com/JonMunkholm/chunkjob/internal/schema"
	"github.com/JonMunkholm/chunkjob/internal/search"
)

// Operation prefixes. The full operation id is prefix + "." + entity name.
const (
	OpExport = "export"
	OpImport = "import"
	OpIndex  = "index"
)

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Source  catalog.Source
	Writer  catalog.Writer
	Indexer search.Indexer
	Logger  *slog.Logger
}

// Operation returns the operation id for kind and entity, e.g. "export.product".
func Operation(kind string, e schema.Entity) string {
	return kind + "." + e.Name
}

// RegisterAll registers the export, import and index operations of every
// catalog entity.
func RegisterAll(reg *core.Registry, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	for _, e := range schema.Entities() {
		b := base{deps: deps, entity: e}
		reg.Register(Operation(OpExport, e), func() core.Handler { return &Export{base: b} })
		reg.Register(Operation(OpImport, e), func() core.Handler { return &Import{base: b} })
		reg.Register(Operation(OpIndex, e), func() core.Handler { return &Index{base: b} })
	}
}

// base holds what every handler of one entity shares.
type base struct {
	deps   Deps
	entity schema.Entity
}

func (b base) logger(job core.Job) *slog.Logger {
	return b.deps.Logger.With("job_id", job.ID, "operation", job.Operation)
}

// checkFilter rejects filters on fields the entity does not have.
func (b base) checkFilter(filter map[string]string) error {
	for name := range filter {
		if _, ok := b.entity.Field(name); !ok {
			return fmt.Errorf("unknown field %q in filter", name)
		}
	}
	return nil
}

// columns returns the header/field pairs for opts, defaulting to every
// entity field under its own name.
func (b base) columns(opts core.Options) ([]core.Field, error) {
	if len(opts.Fields) == 0 {
		cols := make([]core.Field, len(b.entity.Fields))
		for i, f := range b.entity.Fields {
			cols[i] = core.Field{Header: f.Name, Name: f.Name}
		}
		return cols, nil
	}

	cols := make([]core.Field, 0, len(opts.Fields))
	for _, f := range opts.Fields {
		spec, ok := b.entity.Field(f.Name)
		if !ok {
			return nil, fmt.Errorf("unknown field %q for %s", f.Name, b.entity.Name)
		}
		header := f.Header
		if header == "" {
			header = spec.Name
		}
		cols = append(cols, core.Field{Header: header, Name: spec.Name})
	}
	return cols, nil
}

// mapping returns field name to CSV header for an import. Fields left out
// of a partial mapping keep their own name as header, matching the
// fallback schema.ValidateHeaders applies.
func (b base) mapping(opts core.Options) (map[string]string, error) {
	cols, err := b.columns(opts)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(b.entity.Fields))
	for _, c := range cols {
		m[c.Name] = c.Header
	}
	for _, f := range b.entity.Fields {
		if _, ok := m[f.Name]; !ok {
			m[f.Name] = f.Name
		}
	}
	return m, nil
}

func requirePath(opts core.Options) error {
	if strings.TrimSpace(opts.Path) == "" {
		return errors.New("path is required")
	}
	return nil
}

// constraintViolation reports whether err is a PostgreSQL integrity
// constraint violation (SQLSTATE class 23), which only concerns the row
// being written.
func constraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}
