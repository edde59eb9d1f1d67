package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/banko/internal/core"
	"github.com/JonMunkholm/banko/internal/logging"
	"github.com/JonMunkholm/banko/internal/web/views"
)

const importsPath = "/imports"

// handleImportPage renders the import workflow, or the history tab.
func (s *Server) handleImportPage(w http.ResponseWriter, r *http.Request) {
	wf := workflowFrom(r.Context())
	params := views.NewImportPageParams(wf.Snapshot(), s.cfg.Import.PreviewRows)

	if r.URL.Query().Get("tab") == "history" {
		params.Tab = "history"
		records, err := wf.History(r.Context())
		if err != nil {
			logging.FromContext(r.Context()).Warn("list import history", "error", err)
			params.HistoryErr = flashFor(err)
		}
		params.History = records
	}

	s.renderPage(w, r, params, http.StatusOK)
}

func (s *Server) handleSelectFileForm(w http.ResponseWriter, r *http.Request) {
	wf := workflowFrom(r.Context())
	file, err := s.readUpload(w, r)
	if err == nil {
		_, err = wf.SelectFile(remoteContext(r), file)
	}
	s.afterForm(w, r, wf, err)
}

func (s *Server) handleToggleForm(w http.ResponseWriter, r *http.Request) {
	wf := workflowFrom(r.Context())
	field, err := core.ParseField(r.FormValue("field"))
	if err == nil {
		_, err = wf.ToggleMappingColumn(field, r.FormValue("column"))
	}
	s.afterForm(w, r, wf, err)
}

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	wf := workflowFrom(r.Context())
	_, err := wf.Submit(remoteContext(r))
	s.afterForm(w, r, wf, err)
}

func (s *Server) handleRetryForm(w http.ResponseWriter, r *http.Request) {
	wf := workflowFrom(r.Context())
	_, err := wf.Retry(remoteContext(r))
	s.afterForm(w, r, wf, err)
}

func (s *Server) handleResetForm(w http.ResponseWriter, r *http.Request) {
	workflowFrom(r.Context()).Reset()
	http.Redirect(w, r, importsPath, http.StatusSeeOther)
}

// afterForm redirects back to the import page once a form action is done.
// Errors that the page already shows through the session state redirect
// too; anything else is rendered inline with the error status.
func (s *Server) afterForm(w http.ResponseWriter, r *http.Request, wf *core.Workflow, err error) {
	if err == nil || errors.Is(err, core.ErrSuperseded) {
		http.Redirect(w, r, importsPath, http.StatusSeeOther)
		return
	}

	snap := wf.Snapshot()
	if snap.Status == core.StatusError && isRemote(err) {
		logging.FromContext(r.Context()).Warn("form action failed", "path", r.URL.Path, "error", err)
		http.Redirect(w, r, importsPath, http.StatusSeeOther)
		return
	}

	if isHTMX(r) {
		s.respondError(w, r, err, nil)
		return
	}

	status := statusFor(err)
	logging.FromContext(r.Context()).Warn("form action rejected", "path", r.URL.Path, "status", status, "error", err)
	params := views.NewImportPageParams(snap, s.cfg.Import.PreviewRows)
	params.Flash = flashFor(err)
	s.renderPage(w, r, params, status)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, params views.ImportPageParams, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := views.ImportPage(params).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render import page", "error", err)
	}
}

func flashFor(err error) *views.Flash {
	msg := core.MapError(err)
	return &views.Flash{
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		IsError: true,
	}
}

func isRemote(err error) bool {
	var inspection *core.InspectionError
	var importErr *core.ImportError
	var service *core.ServiceError
	return errors.As(err, &inspection) || errors.As(err, &importErr) || errors.As(err, &service)
}
