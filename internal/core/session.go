package core

import (
	"maps"
	"slices"
)

// Status is the workflow status of an import session.
type Status string

const (
	StatusIdle       Status = "idle"       // no file selected
	StatusInspecting Status = "inspecting" // waiting for headers and samples
	StatusMapping    Status = "mapping"    // user is building the column mapping
	StatusImporting  Status = "importing"  // waiting for the import result
	StatusError      Status = "error"      // last remote call failed
)

// Phase names the remote call that moved a session into StatusError.
type Phase string

const (
	PhaseInspect Phase = "inspect"
	PhaseImport  Phase = "import"
)

// ImportSource is the selected file plus what inspection discovered about it.
type ImportSource struct {
	File    File
	Headers []string
	Samples map[string][]string
}

// Session is the import session state machine. Every request it issues is
// tagged with a generation number; a completion is applied only if its
// generation is still current, so responses that arrive after a reset or a
// newer request are dropped.
//
// Session is not safe for concurrent use; Workflow serializes access.
type Session struct {
	status     Status
	generation uint64
	source     ImportSource
	mapping    ColumnMapping
	failed     Phase
	err        error
}

// NewSession returns an idle session with an all-empty mapping.
func NewSession() *Session {
	return &Session{
		status:  StatusIdle,
		mapping: NewColumnMapping(),
	}
}

// Status returns the current status.
func (s *Session) Status() Status { return s.status }

// Generation returns the tag of the most recent request or reset.
func (s *Session) Generation() uint64 { return s.generation }

// Mapping returns the current column mapping.
func (s *Session) Mapping() ColumnMapping { return s.mapping }

// Err returns the failure that moved the session into StatusError.
func (s *Session) Err() error { return s.err }

// clear drops the source, mapping and error and returns to Idle.
func (s *Session) clear() {
	s.generation++
	s.status = StatusIdle
	s.source = ImportSource{}
	s.mapping = NewColumnMapping()
	s.failed = ""
	s.err = nil
}

// Reset returns to Idle from any status, discarding all session data.
// Pending requests are not cancelled; their responses will be ignored.
func (s *Session) Reset() {
	s.clear()
}

// BeginInspection selects file and moves to Inspecting. Any previous source
// and mapping are discarded. It is rejected while an import is in flight.
// A pending inspection is superseded.
func (s *Session) BeginInspection(file File) (uint64, error) {
	if file.Empty() {
		return 0, ErrNoFile
	}
	if s.status == StatusImporting {
		return 0, &StateError{Op: "select file", Status: s.status}
	}

	s.clear()
	s.source = ImportSource{File: file}
	s.status = StatusInspecting
	return s.generation, nil
}

// CompleteInspection stores the inspection result and moves to Mapping with
// an empty mapping. It returns false if gen is stale.
func (s *Session) CompleteInspection(gen uint64, insp Inspection) bool {
	if gen != s.generation || s.status != StatusInspecting {
		return false
	}

	samples := make(map[string][]string, len(insp.Samples))
	for header, values := range insp.Samples {
		samples[header] = slices.Clone(values)
	}
	s.source.Headers = slices.Clone(insp.Headers)
	s.source.Samples = samples
	s.mapping = NewColumnMapping()
	s.status = StatusMapping
	return true
}

// FailInspection moves to Error. It returns false if gen is stale.
func (s *Session) FailInspection(gen uint64, err error) bool {
	if gen != s.generation || s.status != StatusInspecting {
		return false
	}
	s.status = StatusError
	s.failed = PhaseInspect
	s.err = err
	return true
}

// ToggleColumn adds or removes column for field. Only allowed in Mapping.
func (s *Session) ToggleColumn(field LogicalField, column string) error {
	if s.status != StatusMapping {
		return &StateError{Op: "toggle column", Status: s.status}
	}
	if !field.Valid() {
		return ErrUnknownField
	}
	if !slices.Contains(s.source.Headers, column) {
		return ErrUnknownColumn
	}
	s.mapping = ToggleColumn(s.mapping, field, column)
	return nil
}

// BeginImport moves from Mapping to Importing. It fails without side effects
// if the session is not in Mapping or the mapping is incomplete.
func (s *Session) BeginImport() (uint64, error) {
	if s.status != StatusMapping {
		return 0, &StateError{Op: "submit", Status: s.status}
	}
	if missing := Missing(s.mapping); len(missing) > 0 {
		return 0, &IncompleteMappingError{Missing: missing}
	}

	s.generation++
	s.status = StatusImporting
	return s.generation, nil
}

// CompleteImport clears the session after a successful import. It returns
// false if gen is stale.
func (s *Session) CompleteImport(gen uint64) bool {
	if gen != s.generation || s.status != StatusImporting {
		return false
	}
	s.clear()
	return true
}

// FailImport moves to Error keeping the file and mapping so the import can
// be retried. It returns false if gen is stale.
func (s *Session) FailImport(gen uint64, err error) bool {
	if gen != s.generation || s.status != StatusImporting {
		return false
	}
	s.status = StatusError
	s.failed = PhaseImport
	s.err = err
	return true
}

// BeginRetry re-issues the call that failed. It returns the phase being
// retried and the new request generation.
func (s *Session) BeginRetry() (Phase, uint64, error) {
	if s.status != StatusError {
		return "", 0, &StateError{Op: "retry", Status: s.status}
	}

	switch s.failed {
	case PhaseInspect:
		s.generation++
		s.status = StatusInspecting
		s.err = nil
		s.failed = ""
		return PhaseInspect, s.generation, nil
	case PhaseImport:
		s.status = StatusMapping
		gen, err := s.BeginImport()
		if err != nil {
			return "", 0, err
		}
		s.err = nil
		s.failed = ""
		return PhaseImport, gen, nil
	default:
		return "", 0, &StateError{Op: "retry", Status: s.status}
	}
}

// Source returns a copy of the import source.
func (s *Session) Source() ImportSource {
	src := s.source
	src.Headers = slices.Clone(s.source.Headers)
	src.Samples = maps.Clone(s.source.Samples)
	return src
}
