package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/devprovision/pkg/resources"
	"github.com/openfroyo/devprovision/pkg/runner/runnertest"
)

var (
	xenial = PlatformIdentity{Vendor: "Ubuntu", Codename: "xenial"}
	trusty = PlatformIdentity{Vendor: "Ubuntu", Codename: "trusty"}
)

// fakeCatalog is a two-release catalog shaped like the embedded one.
type fakeCatalog struct{}

func (fakeCatalog) SupportMatrix() SupportMatrix {
	return SupportMatrix{"Ubuntu": {"trusty", "xenial"}}
}

func (c fakeCatalog) Resolve(id PlatformIdentity) []PackageSpec {
	v := c.Version(DatabaseDependency, id)
	return []PackageSpec{
		{Name: "git"},
		{Name: "memcached"},
		{Name: "postgresql-" + v},
		{Name: "postgresql-" + v + "-pgroonga"},
	}
}

func (fakeCatalog) Version(dependency string, id PlatformIdentity) string {
	versions := map[string]string{"trusty": "9.3", "xenial": "9.5"}
	v, ok := versions[id.Codename]
	if !ok || dependency != DatabaseDependency {
		panic("no version for " + dependency + " on " + id.String())
	}
	return v
}

// recordingProbe is a ReleaseProbe that counts calls.
type recordingProbe struct {
	id    PlatformIdentity
	calls int
}

func (p *recordingProbe) Release(context.Context) (PlatformIdentity, error) {
	p.calls++
	return p.id, nil
}

// testRunContext lays out a project under a temp dir with the stopword
// list the copy step needs.
func testRunContext(t *testing.T, modes Modes) RunContext {
	t.Helper()

	root := t.TempDir()
	paths := DefaultPaths(root, filepath.Join(root, "venv"), filepath.Join(root, "home", ".bash_profile"))
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.StopwordsSource), 0o755))
	require.NoError(t, os.WriteFile(paths.StopwordsSource, []byte("a\nthe\n"), 0o644))

	return RunContext{Modes: modes, Paths: paths}
}

type pipelineFixture struct {
	pipeline *Pipeline
	runner   *runnertest.Recorder
	logs     *bytes.Buffer
}

// newFixture builds a pipeline over a recording runner and the real
// filesystem initializer.
func newFixture(t *testing.T, arch string, id PlatformIdentity, opts ...PipelineOption) *pipelineFixture {
	t.Helper()

	rec := runnertest.New()
	logs := &bytes.Buffer{}
	logger := zerolog.New(logs)

	executor := Executor{
		Runner:    rec,
		Resources: resources.NewInitializer(rec, zerolog.Nop()),
	}
	gate := NewPlatformGate(StaticArch(arch), StaticRelease(id))

	base := []PipelineOption{
		WithLogger(logger),
		WithRunIDGenerator(func() string { return "run-test" }),
	}
	p := NewPipeline(gate, fakeCatalog{}, NewPlanner(fakeCatalog{}), executor, append(base, opts...)...)

	return &pipelineFixture{pipeline: p, runner: rec, logs: logs}
}

// warnings returns the warn-level log lines.
func (f *pipelineFixture) warnings() []string {
	var out []string
	for _, line := range strings.Split(f.logs.String(), "\n") {
		if strings.Contains(line, `"level":"warn"`) {
			out = append(out, line)
		}
	}
	return out
}

// observerLog records lifecycle notifications.
type observerLog struct {
	NopObserver
	transitions []State
	retries     []string
	finished    []ExecutionResult
	report      *Report
}

func (o *observerLog) StateChanged(_ context.Context, _ string, _, to State) {
	o.transitions = append(o.transitions, to)
}

func (o *observerLog) StepRetried(_ context.Context, _ string, step Step, _ int, _ error) {
	o.retries = append(o.retries, step.Name)
}

func (o *observerLog) StepFinished(_ context.Context, _ string, result ExecutionResult) {
	o.finished = append(o.finished, result)
}

func (o *observerLog) RunFinished(_ context.Context, report *Report) {
	o.report = report
}
