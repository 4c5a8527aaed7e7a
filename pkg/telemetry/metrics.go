package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openfroyo/devprovision/pkg/engine"
)

// Metrics collects Prometheus metrics for provisioning runs. It implements
// engine.Observer; the registry is written to a textfile once per run.
type Metrics struct {
	engine.NopObserver

	config MetricsConfig

	mu        sync.Mutex
	validated bool

	// Step metrics
	stepsTotal   *prometheus.CounterVec
	stepAttempts *prometheus.CounterVec
	retriesTotal *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	errorsByKind *prometheus.CounterVec

	// Run metrics
	runDuration    prometheus.Histogram
	lastRunSuccess prometheus.Gauge
	lastRunTime    prometheus.Gauge

	registry *prometheus.Registry
}

var _ engine.Observer = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with its own registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	namespace := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of steps executed, by outcome",
			},
			[]string{"step", "stage", "status"},
		),
		stepAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_attempts_total",
				Help:      "Total number of step attempts, including retries",
			},
			[]string{"step"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of step retries",
			},
			[]string{"step"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed steps and runs by error kind",
			},
			[]string{"kind"},
		),

		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of provisioning runs in seconds",
				Buckets:   buckets,
			},
		),
		lastRunSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "Whether the last provisioning run succeeded (1) or failed (0)",
			},
		),
		lastRunTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Completion time of the last provisioning run",
			},
		),
	}

	registry.MustRegister(
		m.stepsTotal,
		m.stepAttempts,
		m.retriesTotal,
		m.stepDuration,
		m.errorsByKind,
		m.runDuration,
		m.lastRunSuccess,
		m.lastRunTime,
	)

	return m, nil
}

// Registry returns the registry holding the provisioning metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StateChanged notes when a run passes platform validation.
func (m *Metrics) StateChanged(_ context.Context, _ string, _, to engine.State) {
	if to == engine.StatePlatformValidated {
		m.mu.Lock()
		m.validated = true
		m.mu.Unlock()
	}
}

// PlatformValidated reports whether an observed run got past the platform
// gate. Runs rejected earlier must not write the textfile.
func (m *Metrics) PlatformValidated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validated
}

// StepRetried counts a retry.
func (m *Metrics) StepRetried(_ context.Context, _ string, step engine.Step, _ int, _ error) {
	m.retriesTotal.WithLabelValues(step.Name).Inc()
}

// StepFinished records the outcome, attempts and duration of a step.
func (m *Metrics) StepFinished(_ context.Context, _ string, result engine.ExecutionResult) {
	status := "succeeded"
	if !result.Succeeded {
		status = "failed"
		m.errorsByKind.WithLabelValues(string(result.Kind)).Inc()
	}
	m.stepsTotal.WithLabelValues(result.StepName, string(result.Stage), status).Inc()
	m.stepAttempts.WithLabelValues(result.StepName).Add(float64(result.Attempts))
	m.stepDuration.WithLabelValues(string(result.Stage)).Observe(result.Duration.Seconds())
}

// RunFinished records the run outcome.
func (m *Metrics) RunFinished(_ context.Context, report *engine.Report) {
	m.runDuration.Observe(report.Duration().Seconds())
	if report.Succeeded() {
		m.lastRunSuccess.Set(1)
	} else {
		m.lastRunSuccess.Set(0)
		if len(report.Failed()) == 0 && report.ErrorKind != engine.ErrorKindNone {
			// Failed before any step ran: repository check, gate, plan or guard.
			m.errorsByKind.WithLabelValues(string(report.ErrorKind)).Inc()
		}
	}
	m.lastRunTime.Set(float64(report.CompletedAt.Unix()))
}

// WriteTextfile writes the registry to the configured textfile. It is a
// no-op when no path is configured.
func (m *Metrics) WriteTextfile() error {
	if m.config.Textfile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.config.Textfile), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(m.config.Textfile, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
