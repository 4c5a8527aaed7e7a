package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"github.com/openfroyo/devprovision/pkg/engine"
	"github.com/openfroyo/devprovision/pkg/policy"
	"github.com/openfroyo/devprovision/pkg/stores"
)

var (
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#6C7A89")

	styleTitle   = lipgloss.NewStyle().Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)
	styleError   = lipgloss.NewStyle().Foreground(colorError)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleHeader  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleCell    = lipgloss.NewStyle().Padding(0, 1)
	styleBanner  = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSuccess).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSuccess).
			Padding(0, 1)
)

// printer renders command results as styled tables, or as JSON with --json.
type printer struct {
	w    io.Writer
	json bool
	tty  bool
}

func newPrinter(w io.Writer, jsonOutput bool) *printer {
	p := &printer{w: w, json: jsonOutput}
	if f, ok := w.(*os.File); ok {
		p.tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

// table returns a table with rounded borders on a terminal and bare aligned
// columns otherwise, so piped output stays easy to cut and grep.
func (p *printer) table(headers ...string) *table.Table {
	border := lipgloss.HiddenBorder()
	if p.tty {
		border = lipgloss.RoundedBorder()
	}
	return table.New().
		Border(border).
		BorderStyle(styleMuted).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
}

func (p *printer) encode(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) println(s string) {
	fmt.Fprintln(p.w, s)
}

// plan prints the step sequence.
func (p *printer) plan(plan *engine.Plan, maxAttempts int) error {
	if p.json {
		return p.encode(planJSON(plan, maxAttempts))
	}

	t := p.table("#", "STAGE", "STEP", "ATTEMPTS", "FATAL", "ACTION")
	for i, step := range plan.Steps {
		t.Row(
			strconv.Itoa(i+1),
			string(step.Stage),
			step.Name,
			strconv.Itoa(attemptsFor(step, maxAttempts)),
			yesNo(step.Fatal),
			step.Action.Describe(),
		)
	}

	p.println(styleTitle.Render(fmt.Sprintf("Plan for %s (%s): %d steps",
		plan.Context.Platform, plan.Context.Modes, len(plan.Steps))))
	p.println(t.Render())
	return nil
}

type planStepJSON struct {
	Name     string   `json:"name"`
	Stage    string   `json:"stage"`
	Action   string   `json:"action"`
	Describe string   `json:"describe"`
	Argv     []string `json:"argv,omitempty"`
	Elevated bool     `json:"elevated,omitempty"`
	Attempts int      `json:"attempts"`
	Fatal    bool     `json:"fatal"`
}

func planJSON(plan *engine.Plan, maxAttempts int) interface{} {
	steps := make([]planStepJSON, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		argv, elevated := step.Action.Invocation()
		steps = append(steps, planStepJSON{
			Name:     step.Name,
			Stage:    string(step.Stage),
			Action:   string(step.Action.Kind()),
			Describe: step.Action.Describe(),
			Argv:     argv,
			Elevated: elevated,
			Attempts: attemptsFor(step, maxAttempts),
			Fatal:    step.Fatal,
		})
	}
	return struct {
		Context engine.RunContext `json:"context"`
		Steps   []planStepJSON    `json:"steps"`
	}{plan.Context, steps}
}

func attemptsFor(step engine.Step, maxAttempts int) int {
	if step.Retryable && maxAttempts > 1 {
		return maxAttempts
	}
	return 1
}

// violations prints policy findings, if any.
func (p *printer) violations(violations []policy.Violation) {
	if p.json || len(violations) == 0 {
		return
	}
	for _, v := range violations {
		style := styleWarning
		if v.Severity.Blocking() {
			style = styleError
		}
		p.println(style.Render(v.String()))
	}
}

// report prints the per-step summary of a run.
func (p *printer) report(report *engine.Report) error {
	if p.json {
		return p.encode(report)
	}
	if len(report.Results) == 0 {
		if report.FailureReason != "" {
			p.println(styleError.Render("Provisioning failed: " + report.FailureReason))
		}
		return nil
	}

	t := p.table("STEP", "STAGE", "RESULT", "ATTEMPTS", "DURATION", "ERROR")
	for _, res := range report.Results {
		t.Row(
			res.StepName,
			string(res.Stage),
			resultLabel(res),
			strconv.Itoa(res.Attempts),
			res.Duration.Round(time.Millisecond).String(),
			truncate(res.ErrorMessage(), 60),
		)
	}

	p.println(styleTitle.Render(fmt.Sprintf("Run %s: %s in %s",
		report.RunID, report.State, report.Duration().Round(time.Second))))
	p.println(t.Render())
	if report.FailureReason != "" {
		p.println(styleError.Render("Provisioning failed: " + report.FailureReason))
	}
	return nil
}

func resultLabel(res engine.ExecutionResult) string {
	switch {
	case res.Succeeded:
		return styleSuccess.Render("ok")
	case res.Fatal:
		return styleError.Render("failed")
	default:
		return styleWarning.Render("failed (ignored)")
	}
}

// banner prints the closing success message.
func (p *printer) banner(msg string) {
	if p.json {
		return
	}
	p.println(styleBanner.Render(msg))
}

// host prints the detected host.
func (p *printer) host(host engine.Host) error {
	if p.json {
		return p.encode(host)
	}
	p.println(styleSuccess.Render(fmt.Sprintf("%s (%s) is supported", host.Identity, host.Arch)))
	return nil
}

// packages prints a resolved package set.
func (p *printer) packages(id engine.PlatformIdentity, versions map[string]string, pkgs []engine.PackageSpec) error {
	if p.json {
		return p.encode(struct {
			Platform engine.PlatformIdentity `json:"platform"`
			Versions map[string]string       `json:"versions"`
			Packages []engine.PackageSpec    `json:"packages"`
		}{id, versions, pkgs})
	}

	p.println(styleTitle.Render(fmt.Sprintf("Packages for %s (%d)", id, len(pkgs))))
	for dep, version := range versions {
		p.println(styleMuted.Render(fmt.Sprintf("%s %s", dep, version)))
	}
	for _, pkg := range pkgs {
		p.println(pkg.String())
	}
	return nil
}

// runs prints the run history list.
func (p *printer) runs(runs []*stores.Run) error {
	if p.json {
		return p.encode(runs)
	}
	if len(runs) == 0 {
		p.println(styleMuted.Render("No runs recorded"))
		return nil
	}

	t := p.table("ID", "STARTED", "STATUS", "STATE", "PLATFORM", "MODES", "DURATION")
	for _, r := range runs {
		t.Row(
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			statusLabel(r.Status),
			r.State,
			r.Platform,
			r.Modes,
			r.Duration().Round(time.Second).String(),
		)
	}
	p.println(t.Render())
	return nil
}

// run prints one run with its steps and events.
func (p *printer) run(run *stores.Run, results []*stores.StepResult, events []*stores.Event) error {
	if p.json {
		return p.encode(struct {
			Run     *stores.Run          `json:"run"`
			Results []*stores.StepResult `json:"results"`
			Events  []*stores.Event      `json:"events"`
		}{run, results, events})
	}

	p.println(styleTitle.Render(fmt.Sprintf("Run %s: %s", run.ID, statusLabel(run.Status))))
	p.println(fmt.Sprintf("  platform: %s %s", run.Platform, run.Arch))
	p.println(fmt.Sprintf("  modes:    %s", run.Modes))
	p.println(fmt.Sprintf("  started:  %s", run.StartedAt.Local().Format(time.DateTime)))
	if run.Error != nil {
		p.println(styleError.Render(fmt.Sprintf("  error:    %s (%s)", *run.Error, run.ErrorKind)))
	}

	if len(results) > 0 {
		t := p.table("#", "STEP", "STAGE", "RESULT", "ATTEMPTS", "DURATION", "ERROR")
		for _, r := range results {
			result := styleSuccess.Render("ok")
			if !r.Succeeded {
				result = styleError.Render("failed")
			}
			var msg string
			if r.Error != nil {
				msg = truncate(*r.Error, 60)
			}
			t.Row(
				strconv.Itoa(r.Seq),
				r.Step,
				r.Stage,
				result,
				strconv.Itoa(r.Attempts),
				r.Duration.String(),
				msg,
			)
		}
		p.println(t.Render())
	}

	for _, e := range events {
		line := fmt.Sprintf("%s %-7s %s", e.CreatedAt.Local().Format(time.TimeOnly), e.Level, e.Message)
		if e.Step != "" {
			line += " [" + e.Step + "]"
		}
		p.println(styleMuted.Render(line))
	}
	return nil
}

func statusLabel(status stores.RunStatus) string {
	switch status {
	case stores.RunStatusCompleted:
		return styleSuccess.Render(string(status))
	case stores.RunStatusFailed, stores.RunStatusCancelled:
		return styleError.Render(string(status))
	default:
		return styleWarning.Render(string(status))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
