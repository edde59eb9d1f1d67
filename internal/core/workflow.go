package core

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// ErrSuperseded is returned to a caller whose request finished after the
// session was reset or moved on to a newer request. The response was
// discarded and the session was not changed.
var ErrSuperseded = errors.New("request superseded by a newer session state")

// Observer receives workflow events. It is implemented by the metrics
// package; a nil Observer is allowed.
type Observer interface {
	Transition(from, to Status)
	Imported(rows int)
	Discarded(phase Phase)
}

// WorkflowOptions holds optional collaborators for a Workflow.
type WorkflowOptions struct {
	Limiter  *ImportLimiter
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Workflow is the import workflow controller. It owns one Session and is
// the only code that talks to the remote services on its behalf.
//
// All methods are safe for concurrent use. The lock is never held across a
// remote call, so Reset and Snapshot stay responsive while a request is in
// flight.
type Workflow struct {
	id      string
	backend Backend
	limiter *ImportLimiter
	obs     Observer
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	session    *Session
	lastImport *CompletedImport
	lastActive time.Time
}

// NewWorkflow creates a workflow identified by id.
func NewWorkflow(id string, backend Backend, opts WorkflowOptions) *Workflow {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Workflow{
		id:         id,
		backend:    backend,
		limiter:    opts.Limiter,
		obs:        opts.Observer,
		logger:     logger.With("session_id", id),
		now:        now,
		session:    NewSession(),
		lastActive: now(),
	}
}

// ID returns the workflow's session identifier.
func (w *Workflow) ID() string { return w.id }

// LastActive returns when the workflow was last used.
func (w *Workflow) LastActive() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActive
}

// Snapshot returns the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return snapshotOf(w.id, w.session, w.lastImport)
}

// SelectFile starts a new session for file and asks the inspection service
// for its headers. Previous session data is discarded. It blocks until the
// inspection resolves; if the session was reset or given another file in the
// meantime, the result is dropped and ErrSuperseded is returned.
func (w *Workflow) SelectFile(ctx context.Context, file File) (Snapshot, error) {
	w.mu.Lock()
	from := w.session.Status()
	gen, err := w.session.BeginInspection(file)
	if err != nil {
		snap := snapshotOf(w.id, w.session, w.lastImport)
		w.mu.Unlock()
		return snap, err
	}
	w.lastImport = nil
	w.touch()
	w.transitioned(from, gen)
	w.mu.Unlock()

	w.logger.Info("inspecting file", "filename", file.Name, "bytes", len(file.Data), "generation", gen)
	return w.inspect(ctx, gen, file)
}

func (w *Workflow) inspect(ctx context.Context, gen uint64, file File) (Snapshot, error) {
	insp, err := w.backend.Inspect(ctx, file)
	if err != nil {
		err = asInspectionError(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	from := w.session.Status()
	var applied bool
	if err != nil {
		applied = w.session.FailInspection(gen, err)
	} else {
		applied = w.session.CompleteInspection(gen, insp)
	}
	snap := snapshotOf(w.id, w.session, w.lastImport)

	if !applied {
		w.discarded(PhaseInspect, gen)
		return snap, ErrSuperseded
	}
	w.transitioned(from, gen)
	if err != nil {
		w.logger.Warn("inspection failed", "generation", gen, "error", err)
		return snap, err
	}
	return snap, nil
}

// ToggleMappingColumn adds column to field, or removes it if already present.
// Only allowed while mapping; column must be one of the inspected headers.
func (w *Workflow) ToggleMappingColumn(field LogicalField, column string) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.touch()
	err := w.session.ToggleColumn(field, column)
	return snapshotOf(w.id, w.session, w.lastImport), err
}

// Submit sends the file and the serialized mapping to the import service.
// An incomplete mapping fails with *IncompleteMappingError and no remote
// call is made. On success the session is cleared back to Idle.
func (w *Workflow) Submit(ctx context.Context) (ImportResult, error) {
	w.mu.Lock()
	from := w.session.Status()
	gen, err := w.session.BeginImport()
	if err != nil {
		w.mu.Unlock()
		return ImportResult{}, err
	}
	src := w.session.Source()
	mapping := Serialize(w.session.Mapping())
	w.touch()
	w.transitioned(from, gen)
	w.mu.Unlock()

	return w.runImport(ctx, gen, src.File, mapping)
}

func (w *Workflow) runImport(ctx context.Context, gen uint64, file File, mapping SerializedMapping) (ImportResult, error) {
	w.logger.Info("importing file", "filename", file.Name, "generation", gen)

	res, err := w.callImport(ctx, file, mapping)
	if err != nil {
		err = asImportError(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	from := w.session.Status()
	if err != nil {
		if !w.session.FailImport(gen, err) {
			w.discarded(PhaseImport, gen)
			return ImportResult{}, ErrSuperseded
		}
		w.transitioned(from, gen)
		w.logger.Warn("import failed", "generation", gen, "error", err)
		return ImportResult{}, err
	}

	if !w.session.CompleteImport(gen) {
		w.logger.Info("import finished for a superseded session", "generation", gen, "imported", res.ImportedCount)
		w.discarded(PhaseImport, gen)
		return ImportResult{}, ErrSuperseded
	}
	w.transitioned(from, gen)
	w.lastImport = &CompletedImport{
		Filename:      file.Name,
		ImportedCount: res.ImportedCount,
		At:            w.now(),
	}
	if w.obs != nil {
		w.obs.Imported(res.ImportedCount)
	}
	w.logger.Info("import completed", "filename", file.Name, "imported", res.ImportedCount)
	return res, nil
}

func (w *Workflow) callImport(ctx context.Context, file File, mapping SerializedMapping) (ImportResult, error) {
	if w.limiter != nil {
		if err := w.limiter.Acquire(ctx); err != nil {
			return ImportResult{}, &ServiceError{Service: "import", Message: err.Error(), Err: err}
		}
		defer w.limiter.Release()
	}
	return w.backend.Import(ctx, file, file.Name, mapping)
}

// Retry re-issues the remote call that moved the session into Error, using
// the retained file (and mapping, for a failed import).
func (w *Workflow) Retry(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	from := w.session.Status()
	phase, gen, err := w.session.BeginRetry()
	if err != nil {
		snap := snapshotOf(w.id, w.session, w.lastImport)
		w.mu.Unlock()
		return snap, err
	}
	src := w.session.Source()
	mapping := Serialize(w.session.Mapping())
	w.touch()
	w.transitioned(from, gen)
	w.mu.Unlock()

	if phase == PhaseInspect {
		return w.inspect(ctx, gen, src.File)
	}
	_, err = w.runImport(ctx, gen, src.File, mapping)
	return w.Snapshot(), err
}

// Reset returns the session to Idle from any state. It is idempotent.
// In-flight requests are left to finish; their results are discarded.
func (w *Workflow) Reset() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	from := w.session.Status()
	w.session.Reset()
	w.lastImport = nil
	w.touch()
	w.transitioned(from, w.session.Generation())
	return snapshotOf(w.id, w.session, w.lastImport)
}

// History returns past imports, newest first.
func (w *Workflow) History(ctx context.Context) ([]HistoryRecord, error) {
	records, err := w.backend.ListImportHistory(ctx)
	if err != nil {
		return nil, err
	}
	records = slices.Clone(records)
	slices.SortStableFunc(records, func(a, b HistoryRecord) int {
		return b.ImportedAt.Compare(a.ImportedAt)
	})
	return records, nil
}

// touch must be called with w.mu held.
func (w *Workflow) touch() {
	w.lastActive = w.now()
}

// transitioned logs and reports a status change. Must be called with w.mu held.
func (w *Workflow) transitioned(from Status, gen uint64) {
	to := w.session.Status()
	if from == to {
		return
	}
	w.logger.Debug("import session transition", "from", from, "to", to, "generation", gen)
	if w.obs != nil {
		w.obs.Transition(from, to)
	}
}

func (w *Workflow) discarded(phase Phase, gen uint64) {
	w.logger.Info("discarding stale response", "phase", phase, "generation", gen, "current_generation", w.session.Generation())
	if w.obs != nil {
		w.obs.Discarded(phase)
	}
}

// asInspectionError keeps typed remote errors and wraps anything else so the
// underlying message reaches the user unchanged.
func asInspectionError(err error) error {
	var ie *InspectionError
	var se *ServiceError
	if errors.As(err, &ie) || errors.As(err, &se) {
		return err
	}
	return &InspectionError{Message: err.Error(), Err: err}
}

func asImportError(err error) error {
	var ie *ImportError
	var se *ServiceError
	if errors.As(err, &ie) || errors.As(err, &se) {
		return err
	}
	return &ImportError{Message: err.Error(), Err: err}
}
