// Package schema describes the catalog entities that jobs export, import
// and index: their fields, types and validation rules.
package schema

import (
	"sort"
	"strings"
)

// FieldType represents the expected data type for a field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
)

// FieldSpec defines validation rules for a single field.
type FieldSpec struct {
	Name       string              // Canonical field name, also the default CSV header
	Type       FieldType           // Expected data type
	Required   bool                // Value must be present on import
	EnumValues []string            // Valid values for FieldEnum type
	Searchable bool                // Included in the search document
	Normalizer func(string) string // Optional transformation function
}

// Entity describes one catalog entity.
type Entity struct {
	Name   string      // singular id, e.g. "product"
	Plural string      // for messages, e.g. "products"
	Table  string      // database table
	Key    string      // natural key field
	Fields []FieldSpec // in export column order
}

// Field returns the spec for name (case-insensitive).
func (e Entity) Field(name string) (FieldSpec, bool) {
	for _, f := range e.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FieldNames returns the field names in column order.
func (e Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// Noun returns the singular or plural name for n items.
func (e Entity) Noun(n int) string {
	if n == 1 {
		return e.Name
	}
	return e.Plural
}

var entities = map[string]Entity{
	Product.Name:  Product,
	Category.Name: Category,
}

// Lookup returns the entity named name.
func Lookup(name string) (Entity, bool) {
	e, ok := entities[strings.ToLower(name)]
	return e, ok
}

// Entities returns all entities sorted by name.
func Entities() []Entity {
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
