package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/chunkjob/internal/schema"
)

var _ Catalog = (*Postgres)(nil)

// DB is the subset of pgxpool.Pool the catalog needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps one table per entity, with typed columns derived from
// the schema. Records are paged in key order.
type Postgres struct {
	db DB
}

// NewPostgres creates a catalog over db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the entity tables if needed.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, e := range schema.Entities() {
		if _, err := p.db.Exec(ctx, createTableSQL(e)); err != nil {
			return fmt.Errorf("create %s: %w", e.Table, err)
		}
	}
	return nil
}

func createTableSQL(e schema.Entity) string {
	cols := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		col := pgx.Identifier{f.Name}.Sanitize() + " " + schema.SQLType(f.Type)
		if f.Name == e.Key {
			col += " PRIMARY KEY"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		pgx.Identifier{e.Table}.Sanitize(), strings.Join(cols, ",\n\t"))
}

// where builds a WHERE clause matching filter case-insensitively.
// Field names were checked against the schema by resolve.
func where(filter map[string]string, args []any) (string, []any) {
	if len(filter) == 0 {
		return "", args
	}
	conds := make([]string, 0, len(filter))
	for name, v := range filter {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("lower(%s::text) = lower($%d)",
			pgx.Identifier{strings.ToLower(name)}.Sanitize(), len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Count returns how many records of entity match filter.
func (p *Postgres) Count(ctx context.Context, entity string, filter map[string]string) (int, error) {
	e, err := resolve(entity, filter)
	if err != nil {
		return 0, err
	}

	cond, args := where(filter, nil)
	var n int
	err = p.db.QueryRow(ctx,
		"SELECT count(*) FROM "+pgx.Identifier{e.Table}.Sanitize()+cond, args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", e.Plural, err)
	}
	return n, nil
}

// Slice returns up to limit matching records starting at offset, in key order.
func (p *Postgres) Slice(ctx context.Context, entity string, filter map[string]string, offset, limit int) ([]Record, error) {
	e, err := resolve(entity, filter)
	if err != nil {
		return nil, err
	}

	cols := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = fmt.Sprintf("COALESCE(%s::text, '')", pgx.Identifier{f.Name}.Sanitize())
	}

	cond, args := where(filter, nil)
	args = append(args, limit, offset)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		strings.Join(cols, ", "),
		pgx.Identifier{e.Table}.Sanitize(),
		cond,
		pgx.Identifier{e.Key}.Sanitize(),
		len(args)-1, len(args),
	)

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("slice %s: %w", e.Plural, err)
	}
	defer rows.Close()

	var out []Record
	vals := make([]string, len(e.Fields))
	dest := make([]any, len(e.Fields))
	for i := range vals {
		dest[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.Name, err)
		}
		rec := make(Record, len(e.Fields))
		for i, f := range e.Fields {
			rec[f.Name] = vals[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("slice %s: %w", e.Plural, err)
	}
	return out, nil
}

// Insert upserts rec by its key.
func (p *Postgres) Insert(ctx context.Context, entity string, rec Record) error {
	e, err := resolve(entity, nil)
	if err != nil {
		return err
	}

	cols := make([]string, len(e.Fields))
	params := make([]string, len(e.Fields))
	updates := make([]string, 0, len(e.Fields))
	args := make([]any, len(e.Fields))
	for i, f := range e.Fields {
		col := pgx.Identifier{f.Name}.Sanitize()
		cols[i] = col
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = schema.ToPgValue(f, rec[f.Name])
		if f.Name != e.Key {
			updates = append(updates, col+" = EXCLUDED."+col)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		pgx.Identifier{e.Table}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
		pgx.Identifier{e.Key}.Sanitize(),
		strings.Join(updates, ", "),
	)
	if _, err := p.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s %q: %w", e.Name, rec.Key(e), err)
	}
	return nil
}
