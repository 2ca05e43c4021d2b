package catalog

import (
	"context"
	"maps"
	"sync"
)

var _ Catalog = (*Memory)(nil)

// Memory is an in-process catalog. Records keep their insertion order;
// an insert with an existing key replaces the record in place.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]Record
	pos     map[string]map[string]int
}

// NewMemory returns an empty catalog.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string][]Record),
		pos:     make(map[string]map[string]int),
	}
}

// Count returns how many records of entity match filter.
func (m *Memory) Count(_ context.Context, entity string, filter map[string]string) (int, error) {
	e, err := resolve(entity, filter)
	if err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.records[e.Name] {
		if matches(r, filter) {
			n++
		}
	}
	return n, nil
}

// Slice returns up to limit matching records starting at offset.
func (m *Memory) Slice(_ context.Context, entity string, filter map[string]string, offset, limit int) ([]Record, error) {
	e, err := resolve(entity, filter)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	seen := 0
	for _, r := range m.records[e.Name] {
		if !matches(r, filter) {
			continue
		}
		if seen >= offset {
			out = append(out, maps.Clone(r))
			if len(out) == limit {
				break
			}
		}
		seen++
	}
	return out, nil
}

// Insert stores rec, replacing a record with the same key.
func (m *Memory) Insert(_ context.Context, entity string, rec Record) error {
	e, err := resolve(entity, nil)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	name := e.Name
	if m.pos[name] == nil {
		m.pos[name] = make(map[string]int)
	}
	key := rec.Key(e)
	if i, ok := m.pos[name][key]; ok {
		m.records[name][i] = maps.Clone(rec)
		return nil
	}
	m.pos[name][key] = len(m.records[name])
	m.records[name] = append(m.records[name], maps.Clone(rec))
	return nil
}

// Get returns the record with key.
func (m *Memory) Get(entity, key string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.pos[entity][key]
	if !ok {
		return nil, false
	}
	return maps.Clone(m.records[entity][i]), true
}

// Delete removes the record with key. It reports whether one existed.
func (m *Memory) Delete(entity, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.pos[entity][key]
	if !ok {
		return false
	}
	recs := m.records[entity]
	m.records[entity] = append(recs[:i:i], recs[i+1:]...)
	delete(m.pos[entity], key)
	for k, p := range m.pos[entity] {
		if p > i {
			m.pos[entity][k] = p - 1
		}
	}
	return true
}

// Len returns the number of records of entity.
func (m *Memory) Len(entity string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[entity])
}
