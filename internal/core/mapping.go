package core

import (
	"encoding/json"
	"slices"
)

// ColumnMapping associates each LogicalField with an ordered set of source
// column names. Every field is always present, possibly with no columns.
// The zero value behaves like NewColumnMapping().
//
// A ColumnMapping is a value: the functions in this file never modify their
// input and always return a fresh copy.
type ColumnMapping struct {
	columns map[LogicalField][]string
}

// NewColumnMapping returns a mapping with every field present and empty.
func NewColumnMapping() ColumnMapping {
	m := ColumnMapping{columns: make(map[LogicalField][]string, len(fieldInfos))}
	for _, f := range AllFields() {
		m.columns[f] = []string{}
	}
	return m
}

// Columns returns a copy of the ordered columns assigned to field.
func (m ColumnMapping) Columns(field LogicalField) []string {
	return append([]string{}, m.columns[field]...)
}

// Contains reports whether column is assigned to field.
func (m ColumnMapping) Contains(field LogicalField, column string) bool {
	return slices.Contains(m.columns[field], column)
}

// Equal reports whether both mappings hold the same columns in the same order.
func (m ColumnMapping) Equal(other ColumnMapping) bool {
	for _, f := range AllFields() {
		if !slices.Equal(m.columns[f], other.columns[f]) {
			return false
		}
	}
	return true
}

func (m ColumnMapping) clone() ColumnMapping {
	out := NewColumnMapping()
	for _, f := range AllFields() {
		out.columns[f] = append(out.columns[f], m.columns[f]...)
	}
	return out
}

// ToggleColumn removes column from field if it is already assigned, otherwise
// appends it after the columns chosen so far. Unknown fields leave the
// mapping unchanged.
func ToggleColumn(m ColumnMapping, field LogicalField, column string) ColumnMapping {
	out := m.clone()
	if !field.Valid() {
		return out
	}

	cols := out.columns[field]
	if i := slices.Index(cols, column); i >= 0 {
		out.columns[field] = slices.Delete(cols, i, i+1)
		return out
	}
	out.columns[field] = append(cols, column)
	return out
}

// IsComplete reports whether every field has at least one column.
func IsComplete(m ColumnMapping) bool {
	return len(Missing(m)) == 0
}

// Missing returns the fields that still have no column, in display order.
func Missing(m ColumnMapping) []LogicalField {
	var missing []LogicalField
	for _, f := range AllFields() {
		if len(m.columns[f]) == 0 {
			missing = append(missing, f)
		}
	}
	return missing
}

// SerializedMapping is the transmittable form of a ColumnMapping, keyed by
// the remote API's field keys. Column order is the user's selection order;
// the receiving service joins multi-column values in that order.
type SerializedMapping map[string][]string

// Serialize converts m into its transmittable form.
func Serialize(m ColumnMapping) SerializedMapping {
	out := make(SerializedMapping, len(fieldInfos))
	for _, f := range AllFields() {
		out[f.WireKey()] = m.Columns(f)
	}
	return out
}

// JSON encodes the mapping the way the import endpoint expects it.
func (s SerializedMapping) JSON() ([]byte, error) {
	return json.Marshal(map[string][]string(s))
}

// MarshalJSON renders the mapping keyed by canonical field name.
func (m ColumnMapping) MarshalJSON() ([]byte, error) {
	out := make(map[string][]string, len(fieldInfos))
	for _, f := range AllFields() {
		out[string(f)] = m.Columns(f)
	}
	return json.Marshal(out)
}
