package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/devprovision/pkg/engine"
)

// Opener opens the history store the first time a run needs it.
type Opener func(ctx context.Context) (*SQLiteStore, error)

// Recorder writes pipeline lifecycle notifications to a history store. It
// implements engine.Observer; write failures are logged and never fail the run.
//
// Nothing is written until a run reaches platform_validated: the run row is
// held back and the store is opened on that transition, so a run rejected by
// the platform gate leaves no database behind.
type Recorder struct {
	open   Opener
	logger zerolog.Logger

	mu      sync.Mutex
	store   *SQLiteStore
	failed  bool
	pending map[string]*Run
	active  map[string]bool
	seq     map[string]int
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder backed by an open store.
func NewRecorder(store *SQLiteStore, logger zerolog.Logger) *Recorder {
	return NewDeferredRecorder(func(context.Context) (*SQLiteStore, error) {
		return store, nil
	}, logger)
}

// NewDeferredRecorder creates a recorder that calls open when the first run
// passes platform validation.
func NewDeferredRecorder(open Opener, logger zerolog.Logger) *Recorder {
	return &Recorder{
		open:    open,
		logger:  logger.With().Str("component", "history").Logger(),
		pending: make(map[string]*Run),
		active:  make(map[string]bool),
		seq:     make(map[string]int),
	}
}

// Store returns the store once it has been opened, or nil.
func (r *Recorder) Store() *SQLiteStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store
}

// activate opens the store if needed and inserts the held-back run row.
func (r *Recorder) activate(ctx context.Context, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[runID] {
		return
	}
	run, ok := r.pending[runID]
	if !ok || r.failed {
		return
	}
	delete(r.pending, runID)

	if r.store == nil {
		store, err := r.open(ctx)
		if err != nil {
			r.failed = true
			r.logger.Warn().Err(err).Msg("Run history unavailable; continuing without it")
			return
		}
		r.store = store
	}

	if err := r.store.CreateRun(ctx, run); err != nil {
		r.check(runID, "create run", err)
		return
	}
	r.active[runID] = true
}

func (r *Recorder) isActive(runID string) (*SQLiteStore, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store, r.active[runID]
}

// RunStarted holds the run row until the platform is validated.
func (r *Recorder) RunStarted(_ context.Context, runID string, rc engine.RunContext) {
	run := &Run{
		ID:          runID,
		Platform:    platformString(rc.Platform),
		Arch:        rc.Arch,
		Modes:       rc.Modes.String(),
		ProjectRoot: rc.Paths.ProjectRoot,
		State:       string(engine.StateNotStarted),
		Status:      RunStatusRunning,
		StartedAt:   time.Now(),
	}
	r.mu.Lock()
	r.pending[runID] = run
	r.mu.Unlock()
}

// StateChanged records a state transition event.
func (r *Recorder) StateChanged(ctx context.Context, runID string, from, to engine.State) {
	ctx = context.WithoutCancel(ctx)
	if to == engine.StatePlatformValidated {
		r.activate(ctx, runID)
	}
	store, ok := r.isActive(runID)
	if !ok {
		return
	}

	level := EventLevelInfo
	if to == engine.StateFailed {
		level = EventLevelError
	}
	r.check(runID, "record state change", store.CreateEvent(ctx, &Event{
		RunID:     runID,
		Level:     level,
		Type:      EventTypeStateChanged,
		Message:   fmt.Sprintf("%s -> %s", from, to),
		CreatedAt: time.Now(),
	}))
}

// StepRetried records a retry event.
func (r *Recorder) StepRetried(ctx context.Context, runID string, step engine.Step, attempt int, err error) {
	store, ok := r.isActive(runID)
	if !ok {
		return
	}
	msg := fmt.Sprintf("attempt %d failed", attempt)
	if err != nil {
		msg += ": " + err.Error()
	}
	r.check(runID, "record retry", store.CreateEvent(context.WithoutCancel(ctx), &Event{
		RunID:     runID,
		Level:     EventLevelWarning,
		Type:      EventTypeStepRetried,
		Step:      step.Name,
		Message:   msg,
		CreatedAt: time.Now(),
	}))
}

// StepFinished appends the step outcome.
func (r *Recorder) StepFinished(ctx context.Context, runID string, result engine.ExecutionResult) {
	store, ok := r.isActive(runID)
	if !ok {
		return
	}

	r.mu.Lock()
	r.seq[runID]++
	seq := r.seq[runID]
	r.mu.Unlock()

	r.check(runID, "record step result", store.RecordStepResult(context.WithoutCancel(ctx), &StepResult{
		RunID:     runID,
		Seq:       seq,
		Step:      result.StepName,
		Stage:     string(result.Stage),
		Succeeded: result.Succeeded,
		Fatal:     result.Fatal,
		Attempts:  result.Attempts,
		ErrorKind: string(result.Kind),
		Error:     strPtr(result.ErrorMessage()),
		StartedAt: result.StartedAt,
		Duration:  result.Duration,
	}))
}

// RunFinished stores the final state and status of the run. Runs that never
// passed platform validation are dropped.
func (r *Recorder) RunFinished(ctx context.Context, report *engine.Report) {
	store, ok := r.isActive(report.RunID)
	r.mu.Lock()
	delete(r.seq, report.RunID)
	delete(r.pending, report.RunID)
	delete(r.active, report.RunID)
	r.mu.Unlock()
	if !ok {
		return
	}

	completed := report.CompletedAt
	run := &Run{
		ID:          report.RunID,
		Platform:    platformString(report.Context.Platform),
		Arch:        report.Context.Arch,
		DryRun:      report.DryRun,
		State:       string(report.State),
		Status:      statusOf(report),
		Error:       strPtr(report.FailureReason),
		ErrorKind:   string(report.ErrorKind),
		CompletedAt: &completed,
	}
	r.check(report.RunID, "finish run", store.FinishRun(context.WithoutCancel(ctx), run))
}

func (r *Recorder) check(runID, op string, err error) {
	if err != nil {
		r.logger.Warn().Err(err).Str("run_id", runID).Msgf("History: failed to %s", op)
	}
}

func statusOf(report *engine.Report) RunStatus {
	switch {
	case report.ErrorKind == engine.ErrorKindCancelled:
		return RunStatusCancelled
	case report.State == engine.StateFailed:
		return RunStatusFailed
	case report.DryRun:
		return RunStatusPlanned
	default:
		return RunStatusCompleted
	}
}

func platformString(id engine.PlatformIdentity) string {
	if id.IsZero() {
		return ""
	}
	return id.String()
}
