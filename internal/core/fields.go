package core

import (
	"fmt"
	"strings"
)

// LogicalField identifies a destination attribute of an imported transaction.
// The set is closed: every ColumnMapping carries exactly these keys.
type LogicalField string

const (
	FieldOccurredAt LogicalField = "occurredAt"
	FieldName       LogicalField = "name"
	FieldCategory   LogicalField = "category"
	FieldAmount     LogicalField = "amount"
)

// fieldInfo holds the remote API key and display label for a field.
type fieldInfo struct {
	wireKey string
	label   string
}

var fieldInfos = map[LogicalField]fieldInfo{
	FieldOccurredAt: {wireKey: "at", label: "Date"},
	FieldName:       {wireKey: "name", label: "Name"},
	FieldCategory:   {wireKey: "category", label: "Category"},
	FieldAmount:     {wireKey: "amount", label: "Amount"},
}

// AllFields returns every LogicalField in display order.
func AllFields() []LogicalField {
	return []LogicalField{FieldOccurredAt, FieldName, FieldCategory, FieldAmount}
}

// Valid reports whether f is one of the known fields.
func (f LogicalField) Valid() bool {
	_, ok := fieldInfos[f]
	return ok
}

// WireKey returns the key the finance API expects for this field.
func (f LogicalField) WireKey() string {
	return fieldInfos[f].wireKey
}

// Label returns a human readable name.
func (f LogicalField) Label() string {
	if info, ok := fieldInfos[f]; ok {
		return info.label
	}
	return string(f)
}

func (f LogicalField) String() string {
	return string(f)
}

// ParseField resolves a field from its canonical name, wire key or label.
// Matching is case-insensitive.
func ParseField(s string) (LogicalField, error) {
	s = strings.TrimSpace(s)
	for _, f := range AllFields() {
		info := fieldInfos[f]
		if strings.EqualFold(s, string(f)) || strings.EqualFold(s, info.wireKey) || strings.EqualFold(s, info.label) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownField, s)
}
