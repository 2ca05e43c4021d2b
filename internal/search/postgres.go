package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/chunkjob/internal/catalog"
	"github.com/JonMunkholm/chunkjob/internal/schema"
)

var _ Indexer = (*Postgres)(nil)

// DB is the subset of pgxpool.Pool the indexer needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres stores documents in search_documents with a tsvector column,
// built straight from the catalog tables.
type Postgres struct {
	db     DB
	config string
}

// NewPostgres creates an indexer over db using the "simple" text search
// configuration.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db, config: "simple"}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS search_documents (
		entity     TEXT NOT NULL,
		key        TEXT NOT NULL,
		body       TEXT NOT NULL,
		tsv        TSVECTOR NOT NULL,
		indexed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (entity, key)
	)`,
	`CREATE INDEX IF NOT EXISTS search_documents_tsv_idx ON search_documents USING GIN (tsv)`,
}

// Migrate creates the documents table if needed.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate search: %w", err)
		}
	}
	return nil
}

// indexSQL builds the upsert for one entity. The body concatenates the
// searchable columns, skipping NULLs.
func indexSQL(e schema.Entity) string {
	var cols []string
	for _, f := range e.Fields {
		if f.Searchable {
			cols = append(cols, pgx.Identifier{f.Name}.Sanitize())
		}
	}
	body := "''"
	if len(cols) > 0 {
		body = "concat_ws(' ', " + strings.Join(cols, ", ") + ")"
	}
	key := pgx.Identifier{e.Key}.Sanitize()

	return fmt.Sprintf(`INSERT INTO search_documents (entity, key, body, tsv)
SELECT $1, %[1]s, %[2]s, to_tsvector($3::regconfig, %[2]s)
FROM %[3]s WHERE %[1]s = $2
ON CONFLICT (entity, key) DO UPDATE
SET body = EXCLUDED.body, tsv = EXCLUDED.tsv, indexed_at = now()`,
		key, body, pgx.Identifier{e.Table}.Sanitize())
}

func (p *Postgres) Index(ctx context.Context, entity, key string) (bool, error) {
	e, ok := schema.Lookup(entity)
	if !ok {
		return false, fmt.Errorf("%w: %q", catalog.ErrUnknownEntity, entity)
	}
	tag, err := p.db.Exec(ctx, indexSQL(e), e.Name, key, p.config)
	if err != nil {
		return false, fmt.Errorf("index %s %q: %w", e.Name, key, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) Clear(ctx context.Context, entity string) error {
	e, ok := schema.Lookup(entity)
	if !ok {
		return fmt.Errorf("%w: %q", catalog.ErrUnknownEntity, entity)
	}
	if _, err := p.db.Exec(ctx, "DELETE FROM search_documents WHERE entity = $1", e.Name); err != nil {
		return fmt.Errorf("clear %s documents: %w", e.Name, err)
	}
	return nil
}
