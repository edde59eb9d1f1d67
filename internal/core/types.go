package core

import (
	"context"
	"time"
)

// File is a user-selected CSV file. The content is opaque to this package;
// parsing happens on the finance API.
type File struct {
	Name string
	Data []byte
}

// Empty reports whether no usable file was provided.
func (f File) Empty() bool {
	return f.Name == "" && len(f.Data) == 0
}

// Inspection is the file-inspection service's answer: the ordered column
// headers and, per header, the first few raw values.
type Inspection struct {
	Headers []string            `json:"headers"`
	Samples map[string][]string `json:"samples"`
}

// ImportResult is returned by the import-execution service.
type ImportResult struct {
	ImportedCount int `json:"importedCount"`
}

// HistoryRecord describes one past import.
type HistoryRecord struct {
	ImportedAt    time.Time `json:"importedAt"`
	Filename      string    `json:"filename"`
	ImportedCount int       `json:"importedCount"`
}

// Inspector discovers the headers and sample values of a file.
type Inspector interface {
	Inspect(ctx context.Context, file File) (Inspection, error)
}

// Importer persists the transactions of a file using a finalized mapping.
type Importer interface {
	Import(ctx context.Context, file File, filename string, mapping SerializedMapping) (ImportResult, error)
}

// HistoryLister lists past imports.
type HistoryLister interface {
	ListImportHistory(ctx context.Context) ([]HistoryRecord, error)
}

// Backend bundles the three remote collaborators.
type Backend interface {
	Inspector
	Importer
	HistoryLister
}
