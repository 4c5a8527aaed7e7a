package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/devprovision/pkg/catalog"
	"github.com/openfroyo/devprovision/pkg/config"
	"github.com/openfroyo/devprovision/pkg/engine"
	"github.com/openfroyo/devprovision/pkg/stores"
)

// execute runs the command tree with args against an empty project root.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeIn(t, t.TempDir(), args...)
}

// executeIn runs the command tree with args against project.
func executeIn(t *testing.T, project string, args ...string) (string, error) {
	t.Helper()

	root := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--project-root", project))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// unreachableCatalog supports no real distribution, so the platform gate
// rejects every host.
const unreachableCatalog = `support: {Nowhere: ["never"]}
versions: {postgresql: {never: "1"}}
common: ["git"]
extensions: {never: ["postgresql-1"]}
`

// newCheckout creates a project root that passes the repository check and
// whose catalog rejects the host.
func newCheckout(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tools"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tools", "catalog.cue"), []byte(unreachableCatalog), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, config.DefaultFile), []byte("catalog_path: tools/catalog.cue\n"), 0o644))
	return root
}

func TestFlagAliases(t *testing.T) {
	root := newRootCommand("test", "none", "today")
	runCmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)

	require.NoError(t, runCmd.ParseFlags([]string{"--travis", "--docker", "--production-travis", "--no-such-flag"}))

	for _, name := range []string{"ci", "container", "production-ci"} {
		v, err := runCmd.Flags().GetBool(name)
		require.NoError(t, err)
		assert.True(t, v, name)
	}
}

func TestPlanCommandJSON(t *testing.T) {
	out, err := execute(t, "plan", "--ci", "--container", "--platform", "Ubuntu/xenial", "--json")
	require.NoError(t, err)

	var plan struct {
		Context engine.RunContext `json:"context"`
		Steps   []planStepJSON    `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &plan))

	assert.Equal(t, "xenial", plan.Context.Platform.Codename)
	assert.True(t, plan.Context.Modes.CI)
	require.NotEmpty(t, plan.Steps)

	names := make(map[string]planStepJSON, len(plan.Steps))
	for _, s := range plan.Steps {
		names[s.Name] = s
	}
	install, ok := names["apt-install"]
	require.True(t, ok)
	assert.Contains(t, install.Argv, "postgresql-9.5")
	assert.Equal(t, 1, install.Attempts)
}

func TestPlanCommandTable(t *testing.T) {
	out, err := execute(t, "plan", "--platform", "Ubuntu/trusty")
	require.NoError(t, err)

	assert.Contains(t, out, "Plan for Ubuntu/trusty (development)")
	assert.Contains(t, out, "apt-install")
	assert.Contains(t, out, "STAGE")
}

func TestPlanCommandUnsupportedPlatform(t *testing.T) {
	_, err := execute(t, "plan", "--platform", "Ubuntu/bionic")
	require.Error(t, err)

	var unsupported *engine.UnsupportedPlatformError
	assert.True(t, errors.As(err, &unsupported))
}

func TestCatalogCommand(t *testing.T) {
	out, err := execute(t, "catalog", "--platform", "Ubuntu/trusty", "--json")
	require.NoError(t, err)

	var got struct {
		Platform engine.PlatformIdentity `json:"platform"`
		Versions map[string]string       `json:"versions"`
		Packages []engine.PackageSpec    `json:"packages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "9.3", got.Versions[engine.DatabaseDependency])

	cat, err := catalog.Load()
	require.NoError(t, err)
	assert.Equal(t, cat.Resolve(got.Platform), got.Packages)
}

func TestHistoryCommandEmpty(t *testing.T) {
	project := t.TempDir()
	out, err := executeIn(t, project, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")

	out, err = executeIn(t, project, "history", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	assert.NoDirExists(t, filepath.Join(project, "var"))
}

func TestRunRejectedHostLeavesProjectUntouched(t *testing.T) {
	project := newCheckout(t)

	_, err := executeIn(t, project, "run")
	require.Error(t, err)
	var stepErr *engine.StepError
	assert.False(t, errors.As(err, &stepErr), "no step may run on a rejected host: %v", err)

	assert.NoDirExists(t, filepath.Join(project, "var"))
}

func TestRunOutsideCheckoutLeavesProjectUntouched(t *testing.T) {
	project := t.TempDir()

	_, err := executeIn(t, project, "run")
	var missing *engine.RepositoryMissingError
	require.True(t, errors.As(err, &missing), "got %v", err)

	assert.NoDirExists(t, filepath.Join(project, "var"))
}

func TestInspectionCommandsKeepMetricsTextfile(t *testing.T) {
	project := t.TempDir()
	textfile := filepath.Join(project, "var", "log", "provision.prom")
	require.NoError(t, os.MkdirAll(filepath.Dir(textfile), 0o755))
	seeded := "provision_last_run_success 1\n"
	require.NoError(t, os.WriteFile(textfile, []byte(seeded), 0o644))

	_, err := executeIn(t, project, "plan", "--platform", "Ubuntu/xenial")
	require.NoError(t, err)
	_, err = executeIn(t, project, "catalog", "--platform", "Ubuntu/trusty")
	require.NoError(t, err)
	_, err = executeIn(t, project, "history")
	require.NoError(t, err)
	_, _ = executeIn(t, project, "check")

	got, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Equal(t, seeded, string(got))
}

func TestDisablePolicyFlag(t *testing.T) {
	_, err := execute(t, "plan", "--platform", "Ubuntu/xenial", "--disable-policy", "step-naming")
	require.NoError(t, err)

	_, err = execute(t, "plan", "--platform", "Ubuntu/xenial", "--disable-policy", "no-such-policy")
	require.Error(t, err)
	assert.Equal(t, engine.ErrorKindConfigurationIntegrity, engine.KindOf(err))
}

func TestHistoryShowMissingRun(t *testing.T) {
	_, err := execute(t, "history", "show", "nope")
	assert.True(t, errors.Is(err, stores.ErrNotFound))
}

func TestPrinterReport(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false)

	start := time.Now()
	require.NoError(t, p.report(&engine.Report{
		RunID: "run-1",
		State: engine.StateFailed,
		Results: []engine.ExecutionResult{
			{StepName: "apt-update", Stage: engine.StateRepositoriesConfigured, Succeeded: true, Attempts: 2},
			{StepName: "restart-redis", Stage: engine.StateServicesRestarted, Attempts: 1, Err: errors.New("exit status 1")},
			{StepName: "compile-messages", Stage: engine.StateServicesRestarted, Fatal: true, Attempts: 1, Err: errors.New("exit status 2")},
		},
		FailureReason: "compile-messages: exit status 2",
		StartedAt:     start,
		CompletedAt:   start.Add(3 * time.Second),
	}))

	out := buf.String()
	assert.Contains(t, out, "Run run-1: failed")
	assert.Contains(t, out, "failed (ignored)")
	assert.Contains(t, out, "Provisioning failed: compile-messages: exit status 2")
}

func TestPrinterBannerSuppressedForJSON(t *testing.T) {
	var buf bytes.Buffer
	newPrinter(&buf, true).banner(successBanner)
	assert.Empty(t, buf.String())

	buf.Reset()
	newPrinter(&buf, false).banner(successBanner)
	assert.Contains(t, buf.String(), successBanner)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	long := strings.Repeat("x", 20)
	assert.Equal(t, "xxxxxxx...", truncate(long, 10))
}

func TestHistoryPruneEmpty(t *testing.T) {
	out, err := execute(t, "history", "prune", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 0 runs")
}
