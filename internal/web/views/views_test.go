package views

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/banko/internal/core"
)

func mappingSnapshot() core.Snapshot {
	m := core.NewColumnMapping()
	m = core.ToggleColumn(m, core.FieldAmount, "Amt")
	return core.Snapshot{
		Status:   core.StatusMapping,
		Filename: "bank.csv",
		Headers:  []string{"Date", "Amt"},
		Samples: map[string][]string{
			"Date": {"2024-01-02", "2024-01-03", "2024-01-04"},
			"Amt":  {"1.00", "2.00", "<b>3</b>"},
		},
		Kinds:   map[string]core.ColumnKind{"Date": core.KindDate, "Amt": core.KindText},
		Mapping: m,
		Missing: []core.LogicalField{core.FieldOccurredAt, core.FieldName, core.FieldCategory},
	}
}

func render(t *testing.T, p ImportPageParams) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, ImportPage(p).Render(context.Background(), &buf))
	return buf.String()
}

func TestNewImportPageParams(t *testing.T) {
	p := NewImportPageParams(mappingSnapshot(), 2)

	require.Len(t, p.Fields, len(core.AllFields()))
	amount := p.Fields[3]
	assert.Equal(t, core.FieldAmount, amount.Field)
	assert.Equal(t, []string{"Amt"}, amount.Selected)
	assert.Equal(t, []ColumnOption{
		{Name: "Date", Kind: core.KindDate},
		{Name: "Amt", Kind: core.KindText, Selected: true},
	}, amount.Options)

	assert.Len(t, p.Preview, 2)
	assert.False(t, p.Polling())
}

func TestImportPage_Mapping(t *testing.T) {
	out := render(t, NewImportPageParams(mappingSnapshot(), 5))

	assert.Contains(t, out, "bank.csv")
	assert.Contains(t, out, `class="selected kind-text"`)
	assert.Contains(t, out, "Missing: Date, Name, Category")
	assert.Contains(t, out, "&lt;b&gt;3&lt;/b&gt;")
	assert.NotContains(t, out, `http-equiv="refresh"`)
}

func TestImportPage_PollsWhileBusy(t *testing.T) {
	snap := core.Snapshot{Status: core.StatusImporting, Filename: "bank.csv"}
	out := render(t, NewImportPageParams(snap, 5))

	assert.Contains(t, out, `http-equiv="refresh"`)
	assert.Contains(t, out, "Importing <strong>bank.csv</strong>")
}

func TestHistoryTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HistoryTable(nil).Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "No imports yet.")

	buf.Reset()
	records := []core.HistoryRecord{
		{ImportedAt: time.Date(2024, 3, 2, 14, 5, 0, 0, time.UTC), Filename: "march.csv", ImportedCount: 12},
	}
	require.NoError(t, HistoryTable(records).Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "Mar 2, 2024 14:05")
	assert.Contains(t, buf.String(), "12 rows")
}

func TestErrorAlert(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ErrorAlert("Request timed out", "Try again", "SVC003").Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "Request timed out")
	assert.Contains(t, buf.String(), "(Code: SVC003)")
	assert.Contains(t, buf.String(), `class="alert error"`)
}
