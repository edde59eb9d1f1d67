package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/JonMunkholm/banko/internal/core"
	"github.com/JonMunkholm/banko/internal/logging"
)

// multipartMemory is how much of a multipart form is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

type toggleRequest struct {
	Field  string `json:"field"`
	Column string `json:"column"`
}

type submitResponse struct {
	ImportedCount int           `json:"importedCount"`
	Session       core.Snapshot `json:"session"`
}

// handleGetSession returns the caller's import session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workflowFrom(r.Context()).Snapshot())
}

// handleSelectFile starts a new session for the uploaded file and returns
// once the finance API has inspected it.
func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	wf := workflowFrom(r.Context())

	file, err := s.readUpload(w, r)
	if err != nil {
		snap := wf.Snapshot()
		s.respondError(w, r, err, &snap)
		return
	}

	snap, err := wf.SelectFile(remoteContext(r), file)
	if err != nil {
		s.respondError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleToggleMapping adds or removes a column for a field.
func (s *Server) handleToggleMapping(w http.ResponseWriter, r *http.Request) {
	wf := workflowFrom(r.Context())

	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	field, err := core.ParseField(req.Field)
	if err != nil {
		snap := wf.Snapshot()
		s.respondError(w, r, err, &snap)
		return
	}

	snap, err := wf.ToggleMappingColumn(field, req.Column)
	if err != nil {
		s.respondError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSubmit imports the file with the current mapping.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	wf := workflowFrom(r.Context())

	res, err := wf.Submit(remoteContext(r))
	snap := wf.Snapshot()
	if err != nil {
		s.respondError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{ImportedCount: res.ImportedCount, Session: snap})
}

// handleRetry re-issues the call that failed.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	wf := workflowFrom(r.Context())

	snap, err := wf.Retry(remoteContext(r))
	if err != nil {
		s.respondError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleReset returns the session to idle.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workflowFrom(r.Context()).Reset())
}

// handleHistory lists past imports, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := workflowFrom(r.Context()).History(r.Context())
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if records == nil {
		records = []core.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleHistoryCSV exports the import history as a CSV download.
func (s *Server) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	records, err := workflowFrom(r.Context()).History(r.Context())
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="import-history.csv"`)
	if err := core.WriteHistoryCSV(w, records); err != nil {
		logging.FromContext(r.Context()).Error("write history csv", "error", err)
	}
}

// readUpload reads the "file" part of a multipart request, enforcing the
// configured size limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (core.File, error) {
	limit := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return core.File{}, err
		}
		return core.File{}, errors.Join(errBadRequest, err)
	}

	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return core.File{}, core.ErrNoFile
	}
	if err != nil {
		return core.File{}, errors.Join(errBadRequest, err)
	}
	defer f.Close()

	if header.Size > limit {
		return core.File{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", errFileTooLarge, header.Size, limit)
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return core.File{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return core.File{}, fmt.Errorf("%w: exceeds limit of %d bytes", errFileTooLarge, limit)
	}

	return core.File{Name: header.Filename, Data: data}, nil
}

// remoteContext keeps request values but not cancellation, so a client that
// navigates away does not abort a call the session is waiting on. The
// backend client bounds each call with its own timeout.
func remoteContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
