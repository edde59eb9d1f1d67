package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend answers immediately from canned results and records calls.
type fakeBackend struct {
	mu sync.Mutex

	inspection Inspection
	inspectErr error
	result     ImportResult
	importErr  error
	history    []HistoryRecord
	historyErr error

	inspected    []string
	imports      int
	lastMapping  SerializedMapping
	lastFilename string
}

func (f *fakeBackend) Inspect(_ context.Context, file File) (Inspection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inspected = append(f.inspected, file.Name)
	return f.inspection, f.inspectErr
}

func (f *fakeBackend) Import(_ context.Context, _ File, filename string, mapping SerializedMapping) (ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imports++
	f.lastFilename = filename
	f.lastMapping = mapping
	return f.result, f.importErr
}

func (f *fakeBackend) ListImportHistory(context.Context) ([]HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, f.historyErr
}

func (f *fakeBackend) importCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imports
}

func (f *fakeBackend) setImport(res ImportResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.importErr = res, err
}

func (f *fakeBackend) setInspect(insp Inspection, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inspection, f.inspectErr = insp, err
}

type inspectReply struct {
	insp Inspection
	err  error
}

type importReply struct {
	res ImportResult
	err error
}

// gatedBackend blocks every call until the test releases it, so responses
// can be delivered out of order.
type gatedBackend struct {
	fakeBackend

	started chan string

	mu       sync.Mutex
	inspects map[string]chan inspectReply
	importCh chan importReply
}

func newGatedBackend() *gatedBackend {
	return &gatedBackend{
		started:  make(chan string, 8),
		inspects: make(map[string]chan inspectReply),
		importCh: make(chan importReply, 1),
	}
}

func (g *gatedBackend) inspectGate(name string) chan inspectReply {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.inspects[name]
	if !ok {
		ch = make(chan inspectReply, 1)
		g.inspects[name] = ch
	}
	return ch
}

func (g *gatedBackend) Inspect(ctx context.Context, file File) (Inspection, error) {
	gate := g.inspectGate(file.Name)
	g.started <- "inspect:" + file.Name
	select {
	case r := <-gate:
		return r.insp, r.err
	case <-ctx.Done():
		return Inspection{}, ctx.Err()
	}
}

func (g *gatedBackend) Import(ctx context.Context, file File, filename string, mapping SerializedMapping) (ImportResult, error) {
	if _, err := g.fakeBackend.Import(ctx, file, filename, mapping); err != nil {
		return ImportResult{}, err
	}
	g.started <- "import:" + filename
	select {
	case r := <-g.importCh:
		return r.res, r.err
	case <-ctx.Done():
		return ImportResult{}, ctx.Err()
	}
}

func (g *gatedBackend) resolveInspect(name string, insp Inspection, err error) {
	g.inspectGate(name) <- inspectReply{insp: insp, err: err}
}

func (g *gatedBackend) resolveImport(res ImportResult, err error) {
	g.importCh <- importReply{res: res, err: err}
}

func (g *gatedBackend) waitStarted(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-g.started:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

// recordingObserver collects workflow events.
type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	imported    []int
	discarded   []Phase
}

func (o *recordingObserver) Transition(from, to Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, string(from)+"->"+string(to))
}

func (o *recordingObserver) Imported(rows int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.imported = append(o.imported, rows)
}

func (o *recordingObserver) Discarded(phase Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.discarded = append(o.discarded, phase)
}

func (o *recordingObserver) discards() []Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Phase(nil), o.discarded...)
}

func mapAll(t *testing.T, w *Workflow) {
	t.Helper()
	for _, fc := range []struct {
		field  LogicalField
		column string
	}{
		{FieldOccurredAt, "Date"},
		{FieldName, "Desc"},
		{FieldCategory, "Desc"},
		{FieldAmount, "Amt"},
	} {
		_, err := w.ToggleMappingColumn(fc.field, fc.column)
		require.NoError(t, err)
	}
}

func TestWorkflow_FullImport(t *testing.T) {
	backend := &fakeBackend{inspection: bankInspection, result: ImportResult{ImportedCount: 42}}
	obs := &recordingObserver{}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWorkflow("s1", backend, WorkflowOptions{Observer: obs, Now: func() time.Time { return at }})
	ctx := context.Background()

	snap, err := w.SelectFile(ctx, csvFile("jan.csv"))
	require.NoError(t, err)
	assert.Equal(t, StatusMapping, snap.Status)
	assert.Equal(t, []string{"Date", "Desc", "Amt"}, snap.Headers)
	assert.Equal(t, "jan.csv", snap.Filename)
	assert.False(t, snap.Complete)

	mapAll(t, w)
	snap = w.Snapshot()
	assert.True(t, snap.Complete)
	assert.Empty(t, snap.Missing)

	res, err := w.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, res.ImportedCount)

	assert.Equal(t, 1, backend.importCalls())
	assert.Equal(t, "jan.csv", backend.lastFilename)
	assert.Equal(t, SerializedMapping{
		"at":       {"Date"},
		"name":     {"Desc"},
		"category": {"Desc"},
		"amount":   {"Amt"},
	}, backend.lastMapping)

	snap = w.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Empty(t, snap.Filename)
	assert.Empty(t, snap.Headers)
	assert.True(t, snap.Mapping.Equal(NewColumnMapping()))
	require.NotNil(t, snap.LastImport)
	assert.Equal(t, CompletedImport{Filename: "jan.csv", ImportedCount: 42, At: at}, *snap.LastImport)

	assert.Equal(t, []int{42}, obs.imported)
	assert.Equal(t, []string{
		"idle->inspecting",
		"inspecting->mapping",
		"mapping->importing",
		"importing->idle",
	}, obs.transitions)
}

func TestWorkflow_SubmitIncompleteMakesNoRemoteCall(t *testing.T) {
	backend := &fakeBackend{inspection: bankInspection}
	w := NewWorkflow("s1", backend, WorkflowOptions{})

	_, err := w.SelectFile(context.Background(), csvFile("jan.csv"))
	require.NoError(t, err)
	_, err = w.ToggleMappingColumn(FieldOccurredAt, "Date")
	require.NoError(t, err)

	_, err = w.Submit(context.Background())

	var incomplete *IncompleteMappingError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []LogicalField{FieldName, FieldCategory, FieldAmount}, incomplete.Missing)
	assert.Equal(t, 0, backend.importCalls())
	assert.Equal(t, StatusMapping, w.Snapshot().Status)
}

func TestWorkflow_SelectFileEmpty(t *testing.T) {
	backend := &fakeBackend{}
	w := NewWorkflow("s1", backend, WorkflowOptions{})

	snap, err := w.SelectFile(context.Background(), File{})

	assert.ErrorIs(t, err, ErrNoFile)
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Empty(t, backend.inspected)
}

func TestWorkflow_InspectionFailure(t *testing.T) {
	backend := &fakeBackend{inspectErr: errors.New("Empty CSV file")}
	w := NewWorkflow("s1", backend, WorkflowOptions{})

	snap, err := w.SelectFile(context.Background(), csvFile("empty.csv"))

	var ie *InspectionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, PhaseInspect, snap.FailedPhase)
	assert.Equal(t, "Empty CSV file", snap.Error)
	assert.Equal(t, "empty.csv", snap.Filename)

	backend.setInspect(bankInspection, nil)
	snap, err = w.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusMapping, snap.Status)
	assert.Empty(t, snap.Error)
	assert.Equal(t, []string{"empty.csv", "empty.csv"}, backend.inspected)
}

func TestWorkflow_ServiceErrorKeepsType(t *testing.T) {
	svcErr := &ServiceError{Service: "inspect", StatusCode: 503, Message: "maintenance"}
	backend := &fakeBackend{inspectErr: svcErr}
	w := NewWorkflow("s1", backend, WorkflowOptions{})

	snap, err := w.SelectFile(context.Background(), csvFile("jan.csv"))

	assert.Same(t, svcErr, err)
	assert.Equal(t, "maintenance", snap.Error)
	assert.Equal(t, "SVC001", MapError(err).Code)
}

func TestWorkflow_ImportFailureKeepsDataAndRetries(t *testing.T) {
	backend := &fakeBackend{inspection: bankInspection}
	backend.setImport(ImportResult{}, &ImportError{Message: "Amount column has non-numeric values"})
	w := NewWorkflow("s1", backend, WorkflowOptions{})
	ctx := context.Background()

	_, err := w.SelectFile(ctx, csvFile("jan.csv"))
	require.NoError(t, err)
	mapAll(t, w)
	before := w.Snapshot().Mapping

	_, err = w.Submit(ctx)

	var ie *ImportError
	require.ErrorAs(t, err, &ie)
	snap := w.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, PhaseImport, snap.FailedPhase)
	assert.Equal(t, "Amount column has non-numeric values", snap.Error)
	assert.Equal(t, "jan.csv", snap.Filename)
	assert.True(t, snap.Mapping.Equal(before))
	assert.Nil(t, snap.LastImport)

	backend.setImport(ImportResult{ImportedCount: 7}, nil)
	snap, err = w.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, snap.Status)
	require.NotNil(t, snap.LastImport)
	assert.Equal(t, 7, snap.LastImport.ImportedCount)
	assert.Equal(t, 2, backend.importCalls())
}

func TestWorkflow_StaleInspectionDiscarded(t *testing.T) {
	backend := newGatedBackend()
	obs := &recordingObserver{}
	w := NewWorkflow("s1", backend, WorkflowOptions{Observer: obs})
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := w.SelectFile(ctx, csvFile("f1.csv"))
		first <- err
	}()
	backend.waitStarted(t, "inspect:f1.csv")

	second := make(chan error, 1)
	go func() {
		_, err := w.SelectFile(ctx, csvFile("f2.csv"))
		second <- err
	}()
	backend.waitStarted(t, "inspect:f2.csv")

	backend.resolveInspect("f1.csv", Inspection{Headers: []string{"Stale"}}, nil)
	assert.ErrorIs(t, <-first, ErrSuperseded)

	snap := w.Snapshot()
	assert.Equal(t, StatusInspecting, snap.Status)
	assert.Equal(t, "f2.csv", snap.Filename)
	assert.Empty(t, snap.Headers)

	backend.resolveInspect("f2.csv", bankInspection, nil)
	require.NoError(t, <-second)

	snap = w.Snapshot()
	assert.Equal(t, StatusMapping, snap.Status)
	assert.Equal(t, "f2.csv", snap.Filename)
	assert.Equal(t, bankInspection.Headers, snap.Headers)
	assert.Equal(t, []Phase{PhaseInspect}, obs.discards())
}

func TestWorkflow_ResetDuringInspection(t *testing.T) {
	backend := newGatedBackend()
	w := NewWorkflow("s1", backend, WorkflowOptions{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := w.SelectFile(ctx, csvFile("jan.csv"))
		done <- err
	}()
	backend.waitStarted(t, "inspect:jan.csv")

	snap := w.Reset()
	assert.Equal(t, StatusIdle, snap.Status)

	backend.resolveInspect("jan.csv", Inspection{}, errors.New("late failure"))
	assert.ErrorIs(t, <-done, ErrSuperseded)

	snap = w.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.Filename)
}

func TestWorkflow_ImportInFlight(t *testing.T) {
	newImporting := func(t *testing.T) (*Workflow, *gatedBackend, *recordingObserver, chan error) {
		t.Helper()
		backend := newGatedBackend()
		obs := &recordingObserver{}
		w := NewWorkflow("s1", backend, WorkflowOptions{Observer: obs})

		backend.resolveInspect("jan.csv", bankInspection, nil)
		_, err := w.SelectFile(context.Background(), csvFile("jan.csv"))
		require.NoError(t, err)
		backend.waitStarted(t, "inspect:jan.csv")
		mapAll(t, w)

		done := make(chan error, 1)
		go func() {
			_, err := w.Submit(context.Background())
			done <- err
		}()
		backend.waitStarted(t, "import:jan.csv")
		require.Equal(t, StatusImporting, w.Snapshot().Status)
		return w, backend, obs, done
	}

	t.Run("second submit rejected", func(t *testing.T) {
		w, backend, _, done := newImporting(t)

		_, err := w.Submit(context.Background())
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, 1, backend.importCalls())

		backend.resolveImport(ImportResult{ImportedCount: 1}, nil)
		require.NoError(t, <-done)
	})

	t.Run("select file rejected", func(t *testing.T) {
		w, backend, _, done := newImporting(t)

		_, err := w.SelectFile(context.Background(), csvFile("feb.csv"))
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, "jan.csv", w.Snapshot().Filename)

		backend.resolveImport(ImportResult{ImportedCount: 1}, nil)
		require.NoError(t, <-done)
	})

	t.Run("toggle rejected", func(t *testing.T) {
		w, backend, _, done := newImporting(t)

		_, err := w.ToggleMappingColumn(FieldAmount, "Amt")
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.True(t, w.Snapshot().Mapping.Contains(FieldAmount, "Amt"))

		backend.resolveImport(ImportResult{ImportedCount: 1}, nil)
		require.NoError(t, <-done)
	})

	t.Run("reset discards late success", func(t *testing.T) {
		w, backend, obs, done := newImporting(t)

		snap := w.Reset()
		assert.Equal(t, StatusIdle, snap.Status)

		backend.resolveImport(ImportResult{ImportedCount: 99}, nil)
		assert.ErrorIs(t, <-done, ErrSuperseded)

		snap = w.Snapshot()
		assert.Equal(t, StatusIdle, snap.Status)
		assert.Nil(t, snap.LastImport)
		assert.Equal(t, []Phase{PhaseImport}, obs.discards())
		assert.Empty(t, obs.imported)
	})

	t.Run("reset discards late failure", func(t *testing.T) {
		w, backend, _, done := newImporting(t)

		w.Reset()
		backend.resolveImport(ImportResult{}, &ImportError{Message: "late"})
		assert.ErrorIs(t, <-done, ErrSuperseded)

		snap := w.Snapshot()
		assert.Equal(t, StatusIdle, snap.Status)
		assert.Empty(t, snap.Error)
	})
}

func TestWorkflow_LimiterFull(t *testing.T) {
	backend := &fakeBackend{inspection: bankInspection, result: ImportResult{ImportedCount: 1}}
	limiter := NewImportLimiter(1, 10*time.Millisecond)
	require.NoError(t, limiter.Acquire(context.Background()))
	defer limiter.Release()

	w := NewWorkflow("s1", backend, WorkflowOptions{Limiter: limiter})
	_, err := w.SelectFile(context.Background(), csvFile("jan.csv"))
	require.NoError(t, err)
	mapAll(t, w)

	_, err = w.Submit(context.Background())

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrTooManyImports)
	assert.Equal(t, 0, backend.importCalls())
	assert.Equal(t, StatusError, w.Snapshot().Status)
	assert.Equal(t, "UPL002", MapError(err).Code)
}

func TestWorkflow_ToggleBeforeInspection(t *testing.T) {
	w := NewWorkflow("s1", &fakeBackend{}, WorkflowOptions{})

	_, err := w.ToggleMappingColumn(FieldAmount, "Amt")

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "SES001", MapError(err).Code)
}

func TestWorkflow_ToggleUnknownColumn(t *testing.T) {
	w := NewWorkflow("s1", &fakeBackend{inspection: bankInspection}, WorkflowOptions{})
	_, err := w.SelectFile(context.Background(), csvFile("jan.csv"))
	require.NoError(t, err)

	snap, err := w.ToggleMappingColumn(FieldAmount, "Balance")

	assert.ErrorIs(t, err, ErrUnknownColumn)
	assert.Empty(t, snap.Mapping.Columns(FieldAmount))
}

func TestWorkflow_SelectFileClearsLastImport(t *testing.T) {
	backend := &fakeBackend{inspection: bankInspection, result: ImportResult{ImportedCount: 3}}
	w := NewWorkflow("s1", backend, WorkflowOptions{})
	ctx := context.Background()

	_, err := w.SelectFile(ctx, csvFile("jan.csv"))
	require.NoError(t, err)
	mapAll(t, w)
	_, err = w.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, w.Snapshot().LastImport)

	snap, err := w.SelectFile(ctx, csvFile("feb.csv"))
	require.NoError(t, err)
	assert.Nil(t, snap.LastImport)
	assert.True(t, snap.Mapping.Equal(NewColumnMapping()))
}

func TestWorkflow_History(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	backend := &fakeBackend{history: []HistoryRecord{
		{ImportedAt: day(1), Filename: "a.csv", ImportedCount: 1},
		{ImportedAt: day(3), Filename: "c.csv", ImportedCount: 3},
		{ImportedAt: day(2), Filename: "b.csv", ImportedCount: 2},
	}}
	w := NewWorkflow("s1", backend, WorkflowOptions{})

	records, err := w.History(context.Background())
	require.NoError(t, err)

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Filename
	}
	assert.Equal(t, []string{"c.csv", "b.csv", "a.csv"}, names)
	assert.Equal(t, "a.csv", backend.history[0].Filename, "backend slice must not be reordered")
}

func TestWorkflow_HistoryError(t *testing.T) {
	backend := &fakeBackend{historyErr: &ServiceError{Service: "history", Message: "down"}}
	w := NewWorkflow("s1", backend, WorkflowOptions{})

	_, err := w.History(context.Background())

	var se *ServiceError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, StatusIdle, w.Snapshot().Status)
}

func TestWorkflow_ConcurrentSnapshots(t *testing.T) {
	backend := &fakeBackend{inspection: bankInspection, result: ImportResult{ImportedCount: 1}}
	w := NewWorkflow("s1", backend, WorkflowOptions{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = w.Snapshot()
		}()
		go func() {
			defer wg.Done()
			w.Reset()
		}()
	}
	wg.Wait()

	_, err := w.SelectFile(ctx, csvFile("jan.csv"))
	require.NoError(t, err)
	assert.Equal(t, StatusMapping, w.Snapshot().Status)
}
