package policy

import (
	"github.com/openfroyo/devprovision/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is logged but does not block the run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run before any step executes.
	SeverityError Severity = "error"
)

// Blocking reports whether violations of this severity stop the run.
func (s Severity) Blocking() bool {
	return s == SeverityError
}

// Policy represents a policy rule with its Rego code. The module must define
// a "deny" set in its own package.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not set one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Step is the offending step, when the violation concerns one.
	Step string `json:"step,omitempty"`

	// Message describes the violation.
	Message string `json:"message"`

	// Severity indicates how serious the violation is.
	Severity Severity `json:"severity"`
}

// String renders the violation as "policy: message".
func (v Violation) String() string {
	return v.Policy + ": " + v.Message
}

// Input is the document the policies evaluate, available as input.
type Input struct {
	Platform string       `json:"platform"`
	Arch     string       `json:"arch"`
	Modes    engine.Modes `json:"modes"`
	Steps    []StepInput  `json:"steps"`
}

// StepInput is the policy view of one plan step.
type StepInput struct {
	Name      string   `json:"name"`
	Stage     string   `json:"stage"`
	Action    string   `json:"action"`
	Argv      []string `json:"argv"`
	Elevated  bool     `json:"elevated"`
	Retryable bool     `json:"retryable"`
	Fatal     bool     `json:"fatal"`
}

// NewInput builds the policy input from a plan.
func NewInput(plan *engine.Plan) *Input {
	in := &Input{
		Platform: plan.Context.Platform.String(),
		Arch:     plan.Context.Arch,
		Modes:    plan.Context.Modes,
		Steps:    make([]StepInput, 0, len(plan.Steps)),
	}
	for _, step := range plan.Steps {
		si := StepInput{
			Name:      step.Name,
			Stage:     string(step.Stage),
			Retryable: step.Retryable,
			Fatal:     step.Fatal,
			Argv:      []string{},
		}
		if step.Action != nil {
			argv, elevated := step.Action.Invocation()
			si.Action = string(step.Action.Kind())
			si.Elevated = elevated
			if argv != nil {
				si.Argv = argv
			}
		}
		in.Steps = append(in.Steps, si)
	}
	return in
}

// Data is the configuration document the policies read, available as
// data.provision.config.
type Data struct {
	// ElevatedPrograms may run under the privilege prefix.
	ElevatedPrograms []string `json:"elevated_programs" yaml:"elevated_programs"`

	// ElevatedPrefixes are path prefixes of project tools that may run elevated.
	ElevatedPrefixes []string `json:"elevated_prefixes" yaml:"elevated_prefixes"`
}

// DefaultData returns the allow-lists matching the default plan.
func DefaultData() Data {
	return Data{
		ElevatedPrograms: []string{
			"apt-get",
			"add-apt-repository",
			"cp",
			"rm",
			"service",
			"pg_dropcluster",
			"pg_createcluster",
		},
		ElevatedPrefixes: []string{
			"./scripts/",
			"scripts/",
			"tools/",
		},
	}
}

func (d Data) document() map[string]interface{} {
	programs := make([]interface{}, len(d.ElevatedPrograms))
	for i, p := range d.ElevatedPrograms {
		programs[i] = p
	}
	prefixes := make([]interface{}, len(d.ElevatedPrefixes))
	for i, p := range d.ElevatedPrefixes {
		prefixes[i] = p
	}
	return map[string]interface{}{
		"provision": map[string]interface{}{
			"config": map[string]interface{}{
				"elevated_programs": programs,
				"elevated_prefixes": prefixes,
			},
		},
	}
}
