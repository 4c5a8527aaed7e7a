package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/devprovision/pkg/runner"
)

// ActionKind names the variant of a step action.
type ActionKind string

const (
	ActionCommand   ActionKind = "command"
	ActionDirectory ActionKind = "directory"
	ActionCopy      ActionKind = "copy"
	ActionUnlink    ActionKind = "unlink"
	ActionProfile   ActionKind = "profile"
)

// Executor bundles the collaborators an action may use.
type Executor struct {
	Runner    CommandRunner
	Resources ResourceInitializer
}

// Action is the work performed by a step. The set of variants is closed;
// each variant is plain data so a plan can be inspected without running it.
type Action interface {
	// Kind returns the variant name.
	Kind() ActionKind

	// Describe returns a one-line human-readable description.
	Describe() string

	// Invocation returns the argv the action runs and whether it is elevated.
	// Actions handled in-process return a nil argv.
	Invocation() (argv []string, elevated bool)

	apply(ctx context.Context, ex Executor) error
}

// CommandAction runs an external command.
type CommandAction struct {
	Argv     []string
	Elevated bool
}

func (a CommandAction) Kind() ActionKind { return ActionCommand }

func (a CommandAction) Describe() string {
	if a.Elevated {
		return "(elevated) " + strings.Join(a.Argv, " ")
	}
	return strings.Join(a.Argv, " ")
}

func (a CommandAction) Invocation() ([]string, bool) { return a.Argv, a.Elevated }

func (a CommandAction) apply(ctx context.Context, ex Executor) error {
	_, err := ex.Runner.Run(ctx, a.Argv, runner.Options{Elevated: a.Elevated})
	return err
}

// DirectoryAction ensures a directory exists, including parents.
type DirectoryAction struct {
	Path string
}

func (a DirectoryAction) Kind() ActionKind { return ActionDirectory }

func (a DirectoryAction) Describe() string { return "ensure directory " + a.Path }

func (a DirectoryAction) Invocation() ([]string, bool) { return nil, false }

func (a DirectoryAction) apply(_ context.Context, ex Executor) error {
	return ex.Resources.EnsureDirectory(a.Path)
}

// CopyAction copies a static resource to its destination, always overwriting.
type CopyAction struct {
	Source      string
	Destination string
	Elevated    bool
}

func (a CopyAction) Kind() ActionKind { return ActionCopy }

func (a CopyAction) Describe() string {
	desc := fmt.Sprintf("copy %s -> %s", a.Source, a.Destination)
	if a.Elevated {
		return "(elevated) " + desc
	}
	return desc
}

func (a CopyAction) Invocation() ([]string, bool) {
	if !a.Elevated {
		return nil, false
	}
	return []string{"cp", a.Source, a.Destination}, true
}

func (a CopyAction) apply(ctx context.Context, ex Executor) error {
	return ex.Resources.EnsureFileCopied(ctx, a.Source, a.Destination, a.Elevated)
}

// UnlinkAction removes a symbolic link left at a path that is about to be
// populated as a real directory. Real directories and missing paths are left alone.
type UnlinkAction struct {
	Path     string
	Elevated bool
}

func (a UnlinkAction) Kind() ActionKind { return ActionUnlink }

func (a UnlinkAction) Describe() string { return "remove stale symlink " + a.Path }

func (a UnlinkAction) Invocation() ([]string, bool) {
	if !a.Elevated {
		return nil, false
	}
	return []string{"rm", "-f", a.Path}, true
}

func (a UnlinkAction) apply(ctx context.Context, ex Executor) error {
	return ex.Resources.RemoveStaleSymlink(ctx, a.Path, a.Elevated)
}

// ProfileAction installs a marker-delimited fragment in a shell profile.
type ProfileAction struct {
	Path  string
	Lines []string
}

func (a ProfileAction) Kind() ActionKind { return ActionProfile }

func (a ProfileAction) Describe() string { return "install profile fragment in " + a.Path }

func (a ProfileAction) Invocation() ([]string, bool) { return nil, false }

func (a ProfileAction) apply(_ context.Context, ex Executor) error {
	return ex.Resources.EnsureProfileFragment(a.Path, a.Lines)
}

// Step is one unit of orchestrated work. Steps are immutable once built.
type Step struct {
	// Name uniquely identifies the step within a plan.
	Name string `json:"name"`

	// Stage is the pipeline state this step belongs to.
	Stage State `json:"stage"`

	// Action is the work to perform.
	Action Action `json:"-"`

	// Retryable steps are wrapped by the pipeline's RetryPolicy.
	Retryable bool `json:"retryable"`

	// Fatal steps halt the pipeline on failure; others log and continue.
	Fatal bool `json:"fatal"`
}

// Plan is the concrete, ordered step sequence for one configuration.
type Plan struct {
	Context RunContext `json:"context"`
	Steps   []Step     `json:"steps"`
}

// StageSteps returns the steps attached to a stage, in plan order.
func (p *Plan) StageSteps(stage State) []Step {
	var out []Step
	for _, step := range p.Steps {
		if step.Stage == stage {
			out = append(out, step)
		}
	}
	return out
}

// Step returns the named step.
func (p *Plan) Step(name string) (Step, bool) {
	for _, step := range p.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return Step{}, false
}

// Names returns the step names in plan order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		names[i] = step.Name
	}
	return names
}

// Validate checks structural invariants: unique names, known stages, stage
// order monotonic and an action on every step.
func (p *Plan) Validate() error {
	seen := make(map[string]bool, len(p.Steps))
	lastStage := -1
	for _, step := range p.Steps {
		if step.Name == "" {
			return fmt.Errorf("plan contains a step without a name")
		}
		if seen[step.Name] {
			return fmt.Errorf("duplicate step name %q", step.Name)
		}
		seen[step.Name] = true

		if step.Action == nil {
			return fmt.Errorf("step %q has no action", step.Name)
		}

		idx := stageIndex(step.Stage)
		if idx < 0 {
			return fmt.Errorf("step %q has invalid stage %q", step.Name, step.Stage)
		}
		if idx < lastStage {
			return fmt.Errorf("step %q in stage %s is out of order", step.Name, step.Stage)
		}
		lastStage = idx
	}
	return nil
}

func stageIndex(s State) int {
	for i, st := range stages {
		if st == s {
			return i
		}
	}
	return -1
}
