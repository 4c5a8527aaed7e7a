package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/openfroyo/devprovision/pkg/config"
	"github.com/openfroyo/devprovision/pkg/engine"
	"github.com/openfroyo/devprovision/pkg/telemetry"
)

// successBanner is printed after a complete run.
const successBanner = "Development environment setup succeeded!"

func newRunCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision the development environment",
		Long: `Run the full provisioning pipeline:

  1. check the project is a source checkout
  2. validate the host architecture and platform
  3. build the step plan for the selected modes and check it against policy
  4. configure repositories, install packages, set up the environments,
     create project resources and restart services

The first fatal failure halts the run with a non-zero exit. Re-running after
a failure, or after success, is safe.`,
		Example: `  # Provision a development machine
  provision run

  # Provision a CI worker
  provision run --ci

  # Show what would run on this host without changing anything
  provision run --dry-run --container`,
		Args:               cobra.ArbitraryArgs,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvision(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate the platform and print the plan without executing it")
	return cmd
}

func runProvision(cmd *cobra.Command, opts *options) (err error) {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer func() {
		if cerr := a.Close(ctx); cerr != nil {
			a.logger.Warn().Err(cerr).Msg("Failed to flush telemetry")
		}
	}()

	flags := opts.flags
	flags.Platform = ""
	rc, err := config.Build(a.cfg, flags)
	if err != nil {
		return err
	}

	var observers []engine.Observer
	if rec := a.historyRecorder(); rec != nil {
		observers = append(observers, rec)
	}

	ctx, span := a.tel.Tracer.StartCommandSpan(ctx, "run")
	defer span.End()

	report, runErr := a.pipeline(opts.dryRun, observers...).Run(ctx, rc)
	if !report.DryRun {
		a.writeMetrics()
	}

	runLog := telemetry.FromContext(ctx).WithRunID(report.RunID)
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		runLog.Debug("Trace " + traceID)
	}
	var stepErr *engine.StepError
	if errors.As(runErr, &stepErr) {
		runLog.WithStep(stepErr.Step, string(stepErr.Stage)).
			Error("Fix the failure above and re-run provision; completed steps are safe to repeat")
	}

	if report.DryRun && report.Plan != nil {
		if err := a.out.plan(report.Plan, a.cfg.Retry.MaxAttempts); err != nil {
			return err
		}
	}
	if err := a.out.report(report); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if !report.DryRun {
		a.out.banner(successBanner)
	}
	return nil
}
