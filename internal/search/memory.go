package search

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/JonMunkholm/chunkjob/internal/catalog"
	"github.com/JonMunkholm/chunkjob/internal/schema"
)

var _ Indexer = (*Memory)(nil)

// Getter looks up one catalog record. catalog.Memory implements it.
type Getter interface {
	Get(entity, key string) (catalog.Record, bool)
}

// Memory keeps documents in process, built from records in src.
type Memory struct {
	src  Getter
	mu   sync.RWMutex
	docs map[string]map[string]string
}

// NewMemory returns an empty index over src.
func NewMemory(src Getter) *Memory {
	return &Memory{src: src, docs: make(map[string]map[string]string)}
}

func (m *Memory) Index(_ context.Context, entity, key string) (bool, error) {
	e, ok := schema.Lookup(entity)
	if !ok {
		return false, fmt.Errorf("%w: %q", catalog.ErrUnknownEntity, entity)
	}
	rec, ok := m.src.Get(e.Name, key)
	if !ok {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[e.Name] == nil {
		m.docs[e.Name] = make(map[string]string)
	}
	m.docs[e.Name][key] = Document(e, rec)
	return true, nil
}

func (m *Memory) Clear(_ context.Context, entity string) error {
	e, ok := schema.Lookup(entity)
	if !ok {
		return fmt.Errorf("%w: %q", catalog.ErrUnknownEntity, entity)
	}
	m.mu.Lock()
	delete(m.docs, e.Name)
	m.mu.Unlock()
	return nil
}

// Documents returns a copy of the documents of entity keyed by record key.
func (m *Memory) Documents(entity string) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.docs[entity])
}
