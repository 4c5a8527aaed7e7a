package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/openfroyo/devprovision/pkg/engine"

// Pipeline is the provisioning orchestrator. It sequences the platform gate,
// plan construction and the staged steps, halting on the first fatal failure.
// Steps run strictly one at a time.
type Pipeline struct {
	gate      *PlatformGate
	catalog   DependencyCatalog
	planner   Planner
	executor  Executor
	retry     RetryPolicy
	guard     PlanGuard
	observers []Observer
	logger    zerolog.Logger
	tracer    trace.Tracer
	dryRun    bool
	checkRepo bool
	newRunID  func() string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRetryPolicy sets the policy applied to retryable steps.
func WithRetryPolicy(policy RetryPolicy) PipelineOption {
	return func(p *Pipeline) { p.retry = policy }
}

// WithGuard sets the plan guard evaluated before execution.
func WithGuard(guard PlanGuard) PipelineOption {
	return func(p *Pipeline) { p.guard = guard }
}

// WithObservers appends lifecycle observers.
func WithObservers(observers ...Observer) PipelineOption {
	return func(p *Pipeline) { p.observers = append(p.observers, observers...) }
}

// WithLogger sets the pipeline logger.
func WithLogger(logger zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// WithDryRun stops the pipeline after the plan has been built and checked.
func WithDryRun(dryRun bool) PipelineOption {
	return func(p *Pipeline) { p.dryRun = dryRun }
}

// WithRepositoryCheck enables the source checkout check before the gate.
func WithRepositoryCheck(enabled bool) PipelineOption {
	return func(p *Pipeline) { p.checkRepo = enabled }
}

// WithRunIDGenerator overrides run ID generation.
func WithRunIDGenerator(gen func() string) PipelineOption {
	return func(p *Pipeline) { p.newRunID = gen }
}

// NewPipeline creates a pipeline. The retry policy defaults to
// DefaultMaxAttempts attempts logged to the pipeline logger.
func NewPipeline(gate *PlatformGate, catalog DependencyCatalog, planner Planner, executor Executor, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		gate:     gate,
		catalog:  catalog,
		planner:  planner,
		executor: executor,
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer(tracerName),
		newRunID: func() string { return uuid.New().String() },
	}
	p.retry = RetryPolicy{MaxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(p)
	}
	if p.retry.MaxAttempts == 0 {
		p.retry.MaxAttempts = DefaultMaxAttempts
	}
	p.retry.Logger = p.logger
	return p
}

// run carries the mutable state of one invocation.
type run struct {
	id     string
	sm     *stateMachine
	report *Report
}

// Run executes the pipeline for rc. The returned report is always non-nil;
// the error is the first fatal failure.
func (p *Pipeline) Run(ctx context.Context, rc RunContext) (*Report, error) {
	r := &run{
		id: p.newRunID(),
		sm: newStateMachine(),
	}
	r.report = &Report{
		RunID:     r.id,
		Context:   rc,
		State:     StateNotStarted,
		DryRun:    p.dryRun,
		StartedAt: time.Now(),
	}

	ctx, span := p.tracer.Start(ctx, "provision.run", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("run.modes", rc.Modes.String()),
		attribute.Bool("run.dry_run", p.dryRun),
	))
	defer span.End()

	log := p.logger.With().Str("run_id", r.id).Logger()
	log.Info().Str("modes", rc.Modes.String()).Msg("Starting provisioning run")

	for _, o := range p.observers {
		o.RunStarted(ctx, r.id, rc)
	}

	err := p.execute(ctx, r, rc, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("run.state", string(r.report.State)))

	r.report.CompletedAt = time.Now()
	for _, o := range p.observers {
		o.RunFinished(ctx, r.report)
	}

	if err != nil {
		log.Error().Err(err).Str("kind", string(KindOf(err))).Msg("Provisioning failed")
		return r.report, err
	}

	log.Info().
		Str("state", string(r.report.State)).
		Dur("duration", r.report.Duration()).
		Msg("Provisioning finished")
	return r.report, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run, rc RunContext, log zerolog.Logger) error {
	if p.checkRepo {
		if err := CheckRepository(rc.Paths.ProjectRoot); err != nil {
			return p.fail(ctx, r, err)
		}
	}

	host, err := p.gate.Check(ctx, p.catalog.SupportMatrix())
	if err != nil {
		return p.fail(ctx, r, err)
	}
	rc = rc.WithPlatform(host)
	r.report.Context = rc
	p.transition(ctx, r, StatePlatformValidated)
	log.Info().
		Str("platform", rc.Platform.String()).
		Str("arch", rc.Arch).
		Msg("Platform validated")

	plan, err := p.planner.BuildPlan(rc)
	if err != nil {
		return p.fail(ctx, r, err)
	}
	r.report.Plan = plan

	if p.guard != nil {
		if err := p.guard.Check(ctx, plan); err != nil {
			return p.fail(ctx, r, err)
		}
	}

	if p.dryRun {
		log.Info().Int("steps", len(plan.Steps)).Msg("Dry run: plan built, no steps executed")
		return nil
	}

	for _, stage := range stages {
		if err := p.runStage(ctx, r, plan, stage, log); err != nil {
			return p.fail(ctx, r, err)
		}
		p.transition(ctx, r, stage)
	}

	p.transition(ctx, r, StateComplete)
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, r *run, plan *Plan, stage State, log zerolog.Logger) error {
	ctx, span := p.tracer.Start(ctx, "provision.stage", trace.WithAttributes(
		attribute.String("stage", string(stage)),
	))
	defer span.End()

	for _, step := range plan.StageSteps(stage) {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := p.runStep(ctx, r, step, log)
		r.report.Results = append(r.report.Results, result)
		for _, o := range p.observers {
			o.StepFinished(ctx, r.id, result)
		}

		if result.Succeeded {
			continue
		}
		if step.Fatal {
			span.SetStatus(codes.Error, result.ErrorMessage())
			return &StepError{Step: step.Name, Stage: stage, Attempts: result.Attempts, Err: result.Err}
		}
		log.Warn().
			Err(result.Err).
			Str("step", step.Name).
			Msg("Non-fatal step failed; continuing")
	}
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, r *run, step Step, log zerolog.Logger) ExecutionResult {
	ctx, span := p.tracer.Start(ctx, "provision.step", trace.WithAttributes(
		attribute.String("step.name", step.Name),
		attribute.String("step.action", string(step.Action.Kind())),
		attribute.Bool("step.retryable", step.Retryable),
	))
	defer span.End()

	log.Info().
		Str("step", step.Name).
		Str("stage", string(step.Stage)).
		Msg(step.Action.Describe())

	policy := p.retry
	if !step.Retryable {
		policy.MaxAttempts = 1
	}
	policy.OnRetry = func(_ string, attempt int, err error) {
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
		for _, o := range p.observers {
			o.StepRetried(ctx, r.id, step, attempt, err)
		}
	}

	start := time.Now()
	attempts, err := policy.Do(ctx, step.Name, func(ctx context.Context) error {
		return step.Action.apply(ctx, p.executor)
	})

	result := ExecutionResult{
		StepName:  step.Name,
		Stage:     step.Stage,
		Succeeded: err == nil,
		Attempts:  attempts,
		Fatal:     step.Fatal,
		Kind:      KindOf(err),
		Err:       err,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	span.SetAttributes(attribute.Int("step.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result
}

func (p *Pipeline) transition(ctx context.Context, r *run, to State) {
	from := r.sm.current
	r.sm.advance(to)
	r.report.State = to
	for _, o := range p.observers {
		o.StateChanged(ctx, r.id, from, to)
	}
}

func (p *Pipeline) fail(ctx context.Context, r *run, err error) error {
	from := r.sm.current
	reason := err.Error()
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		reason = fmt.Sprintf("%s: %v", stepErr.Step, stepErr.Err)
	}
	r.sm.fail(reason)
	r.report.State = StateFailed
	r.report.FailureReason = reason
	r.report.ErrorKind = KindOf(err)
	for _, o := range p.observers {
		o.StateChanged(ctx, r.id, from, StateFailed)
	}
	return err
}
