package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/devprovision/pkg/engine"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" }, wantErr: true},
		{name: "otlp without endpoint", mutate: func(c *Config) { c.Tracing.Exporter = "otlp" }, wantErr: true},
		{name: "sampling out of range", mutate: func(c *Config) { c.Tracing.SamplingRate = 1.5 }, wantErr: true},
		{name: "stdout exporter", mutate: func(c *Config) { c.Tracing.Exporter = "stdout" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetricsObserver(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)

	ctx := context.Background()
	step := engine.Step{Name: "install-node-modules", Stage: engine.StateEnvironmentReady}

	m.StepRetried(ctx, "run-1", step, 1, errors.New("network"))
	m.StepFinished(ctx, "run-1", engine.ExecutionResult{
		StepName:  step.Name,
		Stage:     step.Stage,
		Succeeded: true,
		Attempts:  2,
		Duration:  3 * time.Second,
	})
	m.StepFinished(ctx, "run-1", engine.ExecutionResult{
		StepName: "apt-install",
		Stage:    engine.StatePackagesInstalled,
		Attempts: 1,
		Kind:     engine.ErrorKindExternalCommand,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.retriesTotal.WithLabelValues(step.Name)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stepAttempts.WithLabelValues(step.Name)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsTotal.WithLabelValues(step.Name, string(step.Stage), "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsTotal.WithLabelValues("apt-install", string(engine.StatePackagesInstalled), "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsByKind.WithLabelValues(string(engine.ErrorKindExternalCommand))))
}

func TestMetricsRunFinished(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)

	start := time.Now()
	m.RunFinished(context.Background(), &engine.Report{
		State:       engine.StateComplete,
		StartedAt:   start,
		CompletedAt: start.Add(time.Minute),
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lastRunSuccess))

	m.RunFinished(context.Background(), &engine.Report{
		State:       engine.StateFailed,
		ErrorKind:   engine.ErrorKindUnsupportedPlatform,
		StartedAt:   start,
		CompletedAt: start.Add(time.Second),
	})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lastRunSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsByKind.WithLabelValues(string(engine.ErrorKindUnsupportedPlatform))))
}

func TestWriteTextfile(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Textfile = filepath.Join(t.TempDir(), "log", "provision.prom")

	m, err := NewMetrics(cfg)
	require.NoError(t, err)
	m.StepRetried(context.Background(), "run-1", engine.Step{Name: "add-groonga-repository"}, 1, nil)

	require.NoError(t, m.WriteTextfile())

	data, err := os.ReadFile(cfg.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `provision_retries_total{step="add-groonga-repository"} 1`)
}

func TestMetricsPlatformValidated(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)

	m.StateChanged(context.Background(), "run-1", engine.StateNotStarted, engine.StateFailed)
	assert.False(t, m.PlatformValidated())

	m.StateChanged(context.Background(), "run-2", engine.StateNotStarted, engine.StatePlatformValidated)
	assert.True(t, m.PlatformValidated())
}

func TestShutdownLeavesTextfile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "log", "provision.prom")

	tel, err := NewTelemetry(cfg)
	require.NoError(t, err)
	require.NoError(t, tel.Shutdown(context.Background()))

	assert.NoDirExists(t, filepath.Dir(cfg.Metrics.Textfile))
}

func TestWriteTextfileDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	require.NoError(t, err)
	assert.NoError(t, m.WriteTextfile())
}

func TestLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provision.log")
	logger, err := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.WithRunID("run-1").WithStep("apt-update", "packages_installed").Info("Running step")
	logger.Debug("hidden")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"run_id":"run-1"`)
	assert.Contains(t, lines[0], `"step":"apt-update"`)
}

func TestLoggerContext(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	ctx := logger.WithContext(context.Background())
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestTracerStdout(t *testing.T) {
	out := filepath.Join(t.TempDir(), "spans.json")
	tr, err := NewTracer(TracingConfig{Exporter: "stdout", Output: out, SamplingRate: 1}, "provision", "test")
	require.NoError(t, err)

	ctx, span := tr.StartCommandSpan(context.Background(), "check")
	assert.NotEmpty(t, TraceID(ctx))
	span.End()
	require.NoError(t, tr.Shutdown(context.Background()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "provision.check")
}

func TestTracerNone(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Exporter: "none"}, "provision", "test")
	require.NoError(t, err)

	ctx, span := tr.Start(context.Background(), "noop")
	span.End()
	assert.Empty(t, TraceID(ctx))
	assert.NoError(t, tr.Shutdown(context.Background()))
}
