package schema

// validation.go checks records against an entity's field specs before they
// are written. A failing record is skipped and counted, the job goes on.

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidateCell validates a single value against a field specification.
// Returns nil if valid, or an error describing the problem.
func ValidateCell(value string, spec FieldSpec) error {
	if value == "" {
		return nil // Empty values are allowed (will be NULL)
	}

	switch spec.Type {
	case FieldNumeric:
		if !ToPgNumeric(value).Valid {
			return fmt.Errorf("invalid number format")
		}
	case FieldDate:
		if !ToPgDate(value).Valid {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD or similar)")
		}
	case FieldBool:
		if !ToPgBool(value).Valid {
			return fmt.Errorf("must be yes/no, true/false, or 1/0")
		}
	case FieldEnum:
		if len(spec.EnumValues) > 0 {
			for _, ev := range spec.EnumValues {
				if strings.EqualFold(ev, value) {
					return nil
				}
			}
			return fmt.Errorf("invalid enum value, must be one of: %s", strings.Join(spec.EnumValues, ", "))
		}
	}
	return nil
}

// Normalize cleans every value of rec in place and applies field normalizers.
// Unknown fields are dropped.
func Normalize(e Entity, rec map[string]string) {
	for name, raw := range rec {
		spec, ok := e.Field(name)
		if !ok {
			delete(rec, name)
			continue
		}
		v := CleanCell(raw)
		if spec.Normalizer != nil && v != "" {
			v = spec.Normalizer(v)
		}
		rec[name] = v
	}
}

// ValidateRecord returns the first problem with rec, or nil.
func ValidateRecord(e Entity, rec map[string]string) error {
	for _, spec := range e.Fields {
		v := rec[spec.Name]
		if v == "" {
			if spec.Required {
				return ValidationError{Field: spec.Name, Message: "required field is empty"}
			}
			continue
		}
		if err := ValidateCell(v, spec); err != nil {
			return ValidationError{Field: spec.Name, Value: v, Message: err.Error()}
		}
	}
	return nil
}

// ValidateHeaders checks that every required field of e is mapped to a
// header present in the file. mapping is field name to CSV header.
// Returns the header index of the file.
func ValidateHeaders(e Entity, headers []string, mapping map[string]string) (HeaderIndex, error) {
	idx := MakeHeaderIndex(headers)
	var missing []string

	for _, spec := range e.Fields {
		if !spec.Required {
			continue
		}
		header := spec.Name
		if h, ok := mapping[spec.Name]; ok {
			header = h
		}
		if _, ok := idx[strings.ToLower(header)]; !ok {
			missing = append(missing, header)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required column: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// fieldTypeName returns a human-readable name for a field type.
func fieldTypeName(ft FieldType) string {
	switch ft {
	case FieldText:
		return "text"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	default:
		return "value"
	}
}

// SQLType returns the column type used for ft.
func SQLType(ft FieldType) string {
	switch ft {
	case FieldNumeric:
		return "NUMERIC"
	case FieldDate:
		return "DATE"
	case FieldBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// Describe returns a short description like "price (numeric, required)".
func Describe(spec FieldSpec) string {
	s := spec.Name + " (" + fieldTypeName(spec.Type)
	if spec.Required {
		s += ", required"
	}
	return s + ")"
}
