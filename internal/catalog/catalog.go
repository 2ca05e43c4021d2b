// Package catalog is the data source and sink for catalog jobs: it pages
// through products and categories for export and indexing, and stores
// imported records.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/chunkjob/internal/schema"
)

// ErrUnknownEntity is returned for entity names the schema does not know.
var ErrUnknownEntity = errors.New("unknown entity")

// Record is one entity row keyed by field name. Values are normalized strings.
type Record map[string]string

// Key returns the record's natural key for entity e.
func (r Record) Key(e schema.Entity) string {
	return r[e.Key]
}

// Source pages through an entity's records in a stable order.
type Source interface {
	Count(ctx context.Context, entity string, filter map[string]string) (int, error)
	Slice(ctx context.Context, entity string, filter map[string]string, offset, limit int) ([]Record, error)
}

// Writer stores records, replacing any record with the same key.
type Writer interface {
	Insert(ctx context.Context, entity string, rec Record) error
}

// Catalog is both a Source and a Writer.
type Catalog interface {
	Source
	Writer
}

// resolve returns the entity and checks that filter only names its fields.
func resolve(entity string, filter map[string]string) (schema.Entity, error) {
	e, ok := schema.Lookup(entity)
	if !ok {
		return schema.Entity{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	for name := range filter {
		if _, ok := e.Field(name); !ok {
			return schema.Entity{}, fmt.Errorf("filter on unknown field %q for %s", name, e.Name)
		}
	}
	return e, nil
}

func matches(rec Record, filter map[string]string) bool {
	for k, v := range filter {
		if !strings.EqualFold(rec[strings.ToLower(k)], v) {
			return false
		}
	}
	return true
}
