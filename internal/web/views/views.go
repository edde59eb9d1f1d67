// Package views renders the server-side HTML of the import UI as templ
// components.
package views

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/banko/internal/core"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("views").Funcs(template.FuncMap{
	"date":  formatDate,
	"rows":  formatRows,
	"label": func(f core.LogicalField) string { return f.Label() },
}).ParseFS(templateFS, "templates/*.html"))

// ColumnOption is one header shown as a toggle for a field.
type ColumnOption struct {
	Name     string
	Kind     core.ColumnKind
	Selected bool
}

// FieldRow is one transaction field with its column toggles.
type FieldRow struct {
	Field    core.LogicalField
	Label    string
	Selected []string
	Options  []ColumnOption
}

// Flash is a one-off message shown above the workflow.
type Flash struct {
	Message string
	Action  string
	Code    string
	IsError bool
}

// ImportPageParams holds everything the import page shows.
type ImportPageParams struct {
	Tab        string // "import" or "history"
	Snapshot   core.Snapshot
	Fields     []FieldRow
	Preview    [][]string
	History    []core.HistoryRecord
	HistoryErr *Flash
	Flash      *Flash
}

// NewImportPageParams lays out a snapshot for rendering. previewRows caps
// the number of sample rows shown.
func NewImportPageParams(snap core.Snapshot, previewRows int) ImportPageParams {
	fields := make([]FieldRow, 0, len(core.AllFields()))
	for _, f := range core.AllFields() {
		row := FieldRow{
			Field:    f,
			Label:    f.Label(),
			Selected: snap.Mapping.Columns(f),
		}
		for _, h := range snap.Headers {
			row.Options = append(row.Options, ColumnOption{
				Name:     h,
				Kind:     snap.Kinds[h],
				Selected: snap.Mapping.Contains(f, h),
			})
		}
		fields = append(fields, row)
	}

	preview := snap.PreviewRows()
	if previewRows > 0 && len(preview) > previewRows {
		preview = preview[:previewRows]
	}

	return ImportPageParams{
		Tab:      "import",
		Snapshot: snap,
		Fields:   fields,
		Preview:  preview,
	}
}

// Polling reports whether the page should refresh itself while a remote
// call is in flight for another tab or request.
func (p ImportPageParams) Polling() bool {
	return p.Snapshot.Status == core.StatusInspecting || p.Snapshot.Status == core.StatusImporting
}

// ImportPage renders the full import page.
func ImportPage(p ImportPageParams) templ.Component {
	return templ.FromGoHTML(pages.Lookup("import_page"), p)
}

// HistoryTable renders the import history table on its own.
func HistoryTable(records []core.HistoryRecord) templ.Component {
	return templ.FromGoHTML(pages.Lookup("history_table"), records)
}

// ErrorAlert renders an error fragment with the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.FromGoHTML(pages.Lookup("error_alert"), Flash{
		Message: message,
		Action:  action,
		Code:    code,
		IsError: true,
	})
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("Jan 2, 2006")
	}
	return t.Format("Jan 2, 2006 15:04")
}

func formatRows(n int) string {
	if n == 1 {
		return "1 row"
	}
	return fmt.Sprintf("%d rows", n)
}
