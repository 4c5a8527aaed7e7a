package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PlatformIdentity identifies a host distribution and release, e.g. Ubuntu/xenial.
// It is the lookup key into every per-platform table.
type PlatformIdentity struct {
	// Vendor is the distributor ID as reported by lsb_release -is (e.g. "Ubuntu").
	Vendor string `json:"vendor"`

	// Codename is the release codename as reported by lsb_release -cs (e.g. "xenial").
	Codename string `json:"codename"`
}

// String returns the identity in vendor/codename form.
func (p PlatformIdentity) String() string {
	return p.Vendor + "/" + p.Codename
}

// IsZero reports whether the identity has not been detected yet.
func (p PlatformIdentity) IsZero() bool {
	return p.Vendor == "" && p.Codename == ""
}

// ParsePlatformIdentity parses a vendor/codename pair such as "Ubuntu/xenial".
func ParsePlatformIdentity(s string) (PlatformIdentity, error) {
	vendor, codename, ok := strings.Cut(s, "/")
	if !ok || vendor == "" || codename == "" {
		return PlatformIdentity{}, fmt.Errorf("invalid platform %q: expected vendor/codename", s)
	}
	return PlatformIdentity{Vendor: vendor, Codename: codename}, nil
}

// SupportMatrix maps a vendor to its ordered list of supported codenames.
type SupportMatrix map[string][]string

// Supports reports whether the identity appears in the matrix.
func (m SupportMatrix) Supports(id PlatformIdentity) bool {
	for _, codename := range m[id.Vendor] {
		if codename == id.Codename {
			return true
		}
	}
	return false
}

// Identities returns every supported identity, ordered by vendor then declaration order.
func (m SupportMatrix) Identities() []PlatformIdentity {
	vendors := make([]string, 0, len(m))
	for vendor := range m {
		vendors = append(vendors, vendor)
	}
	sort.Strings(vendors)

	var ids []PlatformIdentity
	for _, vendor := range vendors {
		for _, codename := range m[vendor] {
			ids = append(ids, PlatformIdentity{Vendor: vendor, Codename: codename})
		}
	}
	return ids
}

// PackageSpec is a single OS package, optionally pinned to a version.
type PackageSpec struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// String returns the package in apt argument form (name or name=version).
func (p PackageSpec) String() string {
	if p.Version == "" {
		return p.Name
	}
	return p.Name + "=" + p.Version
}

// Modes holds the two orthogonal run-mode flags plus the production CI sub-mode.
type Modes struct {
	// CI selects the continuous-integration environment setup.
	CI bool `json:"ci"`

	// ProductionCI is a CI sub-mode that skips local service and database bootstrap.
	ProductionCI bool `json:"production_ci"`

	// Container selects the database cluster bootstrap used inside containers.
	Container bool `json:"container"`
}

// String returns a short human-readable description of the modes.
func (m Modes) String() string {
	var parts []string
	if m.CI {
		parts = append(parts, "ci")
	}
	if m.ProductionCI {
		parts = append(parts, "production-ci")
	}
	if m.Container {
		parts = append(parts, "container")
	}
	if len(parts) == 0 {
		return "development"
	}
	return strings.Join(parts, ",")
}

// Paths holds every filesystem location the pipeline reads from or provisions.
type Paths struct {
	ProjectRoot     string `json:"project_root"`
	LogDir          string `json:"log_dir"`
	UploadDir       string `json:"upload_dir"`
	TestUploadDir   string `json:"test_upload_dir"`
	CoverageDir     string `json:"coverage_dir"`
	LineCoverageDir string `json:"line_coverage_dir"`
	NodeCoverageDir string `json:"node_coverage_dir"`
	VenvPath        string `json:"venv_path"`
	ProfilePath     string `json:"profile_path"`
	StopwordsSource string `json:"stopwords_source"`
	NodeModules     string `json:"node_modules"`
}

// DefaultPaths derives the standard layout under a project root. Profile is
// the invoking user's shell profile.
func DefaultPaths(projectRoot, venvPath, profile string) Paths {
	varDir := filepath.Join(projectRoot, "var")
	return Paths{
		ProjectRoot:     projectRoot,
		LogDir:          filepath.Join(varDir, "log"),
		UploadDir:       filepath.Join(varDir, "uploads"),
		TestUploadDir:   filepath.Join(varDir, "test_uploads"),
		CoverageDir:     filepath.Join(varDir, "coverage"),
		LineCoverageDir: filepath.Join(varDir, "linecoverage-report"),
		NodeCoverageDir: filepath.Join(varDir, "node-coverage"),
		VenvPath:        venvPath,
		ProfilePath:     profile,
		StopwordsSource: filepath.Join(projectRoot, "puppet", "zulip", "files", "postgresql", "zulip_english.stop"),
		NodeModules:     filepath.Join(projectRoot, "node_modules"),
	}
}

// Directories returns the directories provisioned under the project root, in creation order.
func (p Paths) Directories() []string {
	return []string{
		p.LogDir,
		p.UploadDir,
		p.TestUploadDir,
		p.CoverageDir,
		p.LineCoverageDir,
		p.NodeCoverageDir,
	}
}

// RunContext is the immutable process-wide state of one provisioning run.
// It is passed by value; WithPlatform returns a copy.
type RunContext struct {
	Platform PlatformIdentity `json:"platform"`
	Arch     string           `json:"arch,omitempty"`
	Modes    Modes            `json:"modes"`
	Paths    Paths            `json:"paths"`
}

// WithPlatform returns a copy of the context carrying the detected host.
func (rc RunContext) WithPlatform(host Host) RunContext {
	rc.Platform = host.Identity
	rc.Arch = host.Arch
	return rc
}

// ExecutionResult is the outcome of a single step.
type ExecutionResult struct {
	StepName  string        `json:"step_name"`
	Stage     State         `json:"stage"`
	Succeeded bool          `json:"succeeded"`
	Attempts  int           `json:"attempts"`
	Fatal     bool          `json:"fatal"`
	Kind      ErrorKind     `json:"error_kind,omitempty"`
	Err       error         `json:"-"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ErrorMessage returns the error text, or an empty string on success.
func (r ExecutionResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Report aggregates the results of one pipeline run.
type Report struct {
	RunID         string            `json:"run_id"`
	Context       RunContext        `json:"context"`
	State         State             `json:"state"`
	FailureReason string            `json:"failure_reason,omitempty"`
	ErrorKind     ErrorKind         `json:"error_kind,omitempty"`
	Results       []ExecutionResult `json:"results"`
	Plan          *Plan             `json:"-"`
	DryRun        bool              `json:"dry_run"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
}

// Succeeded reports whether the run reached StateComplete (or passed validation in a dry run).
func (r *Report) Succeeded() bool {
	if r.DryRun {
		return r.State != StateFailed
	}
	return r.State == StateComplete
}

// Duration returns the wall-clock duration of the run.
func (r *Report) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Failed returns the results of steps that did not succeed.
func (r *Report) Failed() []ExecutionResult {
	var out []ExecutionResult
	for _, res := range r.Results {
		if !res.Succeeded {
			out = append(out, res)
		}
	}
	return out
}
