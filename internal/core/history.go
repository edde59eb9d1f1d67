package core

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
)

// historyRow is the CSV layout of one history record.
type historyRow struct {
	ImportedAt    string `csv:"imported_at"`
	Filename      string `csv:"file_name"`
	ImportedCount int    `csv:"imported"`
}

// WriteHistoryCSV writes records as CSV with a header row. Timestamps are
// written in RFC 3339.
func WriteHistoryCSV(w io.Writer, records []HistoryRecord) error {
	rows := make([]historyRow, len(records))
	for i, rec := range records {
		rows[i] = historyRow{
			ImportedAt:    rec.ImportedAt.UTC().Format(time.RFC3339),
			Filename:      rec.Filename,
			ImportedCount: rec.ImportedCount,
		}
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write history csv: %w", err)
	}
	return nil
}
