package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ColumnKind is a guess at what a column holds, based on its sample values.
// It is shown next to each header to help the user pick columns; it never
// changes the mapping.
type ColumnKind string

const (
	KindEmpty  ColumnKind = "empty"
	KindNumber ColumnKind = "number"
	KindDate   ColumnKind = "date"
	KindText   ColumnKind = "text"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// InferColumnKind classifies a column from its sample values. Blank values
// are ignored; a column is a number or a date only if every other value is.
func InferColumnKind(values []string) ColumnKind {
	numbers, dates, seen := 0, 0, 0
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen++
		if isAmount(v) {
			numbers++
		} else if isDate(v) {
			dates++
		}
	}

	switch {
	case seen == 0:
		return KindEmpty
	case numbers == seen:
		return KindNumber
	case dates == seen:
		return KindDate
	default:
		return KindText
	}
}

// ColumnKinds classifies every header of an inspection.
func ColumnKinds(headers []string, samples map[string][]string) map[string]ColumnKind {
	kinds := make(map[string]ColumnKind, len(headers))
	for _, h := range headers {
		kinds[h] = InferColumnKind(samples[h])
	}
	return kinds
}

// isAmount accepts plain decimals plus the decorations bank exports add:
// currency symbols, thousands separators and parenthesized negatives.
func isAmount(v string) bool {
	v = strings.TrimPrefix(v, "+")
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		v = "-" + v[1:len(v)-1]
	}
	v = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(v)
	_, err := decimal.NewFromString(v)
	return err == nil
}

func isDate(v string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
