package engine

import (
	"context"

	"github.com/openfroyo/devprovision/pkg/runner"
)

// CommandRunner executes external processes. It is the uniform boundary to
// every non-core tool (apt-get, installers, service control).
type CommandRunner interface {
	// Run executes argv and blocks until the process exits. A non-zero exit
	// status is reported as *runner.ExternalCommandError.
	Run(ctx context.Context, argv []string, opts runner.Options) (*runner.Output, error)
}

// ResourceInitializer performs idempotent filesystem provisioning.
type ResourceInitializer interface {
	// EnsureDirectory creates path and its parents; an existing directory is success.
	EnsureDirectory(path string) error

	// EnsureFileCopied copies src over dst, always overwriting.
	EnsureFileCopied(ctx context.Context, src, dst string, elevated bool) error

	// RemoveStaleSymlink removes path if, and only if, it is a symbolic link.
	RemoveStaleSymlink(ctx context.Context, path string, elevated bool) error

	// EnsureProfileFragment installs lines as a single managed block in a shell profile.
	EnsureProfileFragment(path string, lines []string) error
}

// DependencyCatalog resolves the package set for a platform.
type DependencyCatalog interface {
	// SupportMatrix returns the supported vendor/codename table.
	SupportMatrix() SupportMatrix

	// Resolve returns the ordered package set for a supported identity.
	// It panics for an identity outside the support matrix.
	Resolve(id PlatformIdentity) []PackageSpec

	// Version returns the concrete version of a logical versioned dependency
	// for a supported identity. It panics when the mapping is missing.
	Version(dependency string, id PlatformIdentity) string
}

// Planner turns a run context into the concrete step sequence.
type Planner interface {
	BuildPlan(rc RunContext) (*Plan, error)
}

// PlanGuard inspects a plan before any step executes.
type PlanGuard interface {
	// Check returns *PolicyViolationError when the plan must not run.
	Check(ctx context.Context, plan *Plan) error
}

// Observer receives pipeline lifecycle notifications. Observers must not fail
// the run; they log their own errors.
type Observer interface {
	RunStarted(ctx context.Context, runID string, rc RunContext)
	StateChanged(ctx context.Context, runID string, from, to State)
	StepRetried(ctx context.Context, runID string, step Step, attempt int, err error)
	StepFinished(ctx context.Context, runID string, result ExecutionResult)
	RunFinished(ctx context.Context, report *Report)
}

// NopObserver implements Observer with no-op methods. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) RunStarted(context.Context, string, RunContext) {}
func (NopObserver) StateChanged(context.Context, string, State, State) {}
func (NopObserver) StepRetried(context.Context, string, Step, int, error) {}
func (NopObserver) StepFinished(context.Context, string, ExecutionResult) {}
func (NopObserver) RunFinished(context.Context, *Report) {}

// ArchProbe reports the host machine hardware name (uname -m).
type ArchProbe interface {
	Machine() (string, error)
}

// ReleaseProbe reports the host distribution identity.
type ReleaseProbe interface {
	Release(ctx context.Context) (PlatformIdentity, error)
}
