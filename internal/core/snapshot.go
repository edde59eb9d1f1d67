package core

import "time"

// CompletedImport summarizes the last successful import of a workflow.
type CompletedImport struct {
	Filename      string    `json:"filename"`
	ImportedCount int       `json:"importedCount"`
	At            time.Time `json:"at"`
}

// Snapshot is a read-only view of a workflow for presentation.
type Snapshot struct {
	SessionID   string                `json:"sessionId"`
	Status      Status                `json:"status"`
	Generation  uint64                `json:"generation"`
	Filename    string                `json:"filename,omitempty"`
	Headers     []string              `json:"headers"`
	Samples     map[string][]string   `json:"samples"`
	Kinds       map[string]ColumnKind `json:"kinds"`
	Mapping     ColumnMapping         `json:"mapping"`
	Complete    bool                  `json:"complete"`
	Missing     []LogicalField        `json:"missing"`
	FailedPhase Phase                 `json:"failedPhase,omitempty"`
	Error       string                `json:"error,omitempty"`
	LastImport  *CompletedImport      `json:"lastImport,omitempty"`
}

func snapshotOf(id string, s *Session, last *CompletedImport) Snapshot {
	src := s.Source()
	snap := Snapshot{
		SessionID:   id,
		Status:      s.status,
		Generation:  s.generation,
		Filename:    src.File.Name,
		Headers:     src.Headers,
		Samples:     src.Samples,
		Kinds:       ColumnKinds(src.Headers, src.Samples),
		Mapping:     s.mapping.clone(),
		Complete:    IsComplete(s.mapping),
		Missing:     Missing(s.mapping),
		FailedPhase: s.failed,
	}
	if snap.Headers == nil {
		snap.Headers = []string{}
	}
	if snap.Samples == nil {
		snap.Samples = map[string][]string{}
	}
	if snap.Missing == nil {
		snap.Missing = []LogicalField{}
	}
	if s.err != nil {
		snap.Error = remoteMessage(s.err)
	}
	if last != nil {
		l := *last
		snap.LastImport = &l
	}
	return snap
}

// PreviewRows lays the samples out as rows in header order. Shorter sample
// lists are padded with empty cells.
func (s Snapshot) PreviewRows() [][]string {
	n := 0
	for _, h := range s.Headers {
		n = max(n, len(s.Samples[h]))
	}

	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, len(s.Headers))
		for j, h := range s.Headers {
			if vals := s.Samples[h]; i < len(vals) {
				row[j] = vals[i]
			}
		}
		rows[i] = row
	}
	return rows
}
