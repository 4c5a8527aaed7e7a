package stores

import (
	"time"
)

// RunStatus represents the outcome of a provisioning run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPlanned   RunStatus = "planned"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Event types recorded by the run recorder.
const (
	EventTypeStateChanged = "state_changed"
	EventTypeStepRetried  = "step_retried"
)

// Run represents one provisioning run
type Run struct {
	ID          string     `json:"id"`
	Platform    string     `json:"platform"`
	Arch        string     `json:"arch"`
	Modes       string     `json:"modes"`
	ProjectRoot string     `json:"project_root"`
	DryRun      bool       `json:"dry_run"`
	State       string     `json:"state"`
	Status      RunStatus  `json:"status"`
	Error       *string    `json:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the run duration, or zero while it is still running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// StepResult represents the outcome of one executed step
type StepResult struct {
	ID        int64         `json:"id"`
	RunID     string        `json:"run_id"`
	Seq       int           `json:"seq"`
	Step      string        `json:"step"`
	Stage     string        `json:"stage"`
	Succeeded bool          `json:"succeeded"`
	Fatal     bool          `json:"fatal"`
	Attempts  int           `json:"attempts"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     *string       `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Event represents a notable occurrence during a run
type Event struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Level     EventLevel `json:"level"`
	Type      string     `json:"type"`
	Step      string     `json:"step,omitempty"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// strPtr returns nil for an empty string.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
