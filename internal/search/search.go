// Package search maintains the full-text documents built from catalog
// records. Index rebuild jobs clear an entity's documents and then index
// its records a chunk at a time.
package search

import (
	"context"
	"strings"

	"github.com/JonMunkholm/chunkjob/internal/schema"
)

// Indexer writes search documents.
type Indexer interface {
	// Index builds the document for the record of entity with key. It
	// reports false when the record no longer exists.
	Index(ctx context.Context, entity, key string) (bool, error)
	// Clear removes every document of entity.
	Clear(ctx context.Context, entity string) error
}

// Document joins the searchable fields of rec in field order.
func Document(e schema.Entity, rec map[string]string) string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Searchable && rec[f.Name] != "" {
			parts = append(parts, rec[f.Name])
		}
	}
	return strings.Join(parts, " ")
}
