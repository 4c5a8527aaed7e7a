package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/devprovision/pkg/config"
	"github.com/openfroyo/devprovision/pkg/engine"
)

func newPlanCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the step plan without executing it",
		Long: `Print the concrete step sequence for the selected modes: stage, step name,
attempt budget, whether a failure is fatal and the action performed.

The plan is checked against the plan policies; blocking violations are
reported and make the command fail. Nothing is executed.`,
		Example: `  # Plan for the detected host
  provision plan

  # Plan a container CI setup for a specific release
  provision plan --ci --container --platform Ubuntu/xenial`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			rc, err := config.Build(a.cfg, opts.flags)
			if err != nil {
				return err
			}
			rc, err = a.host(ctx, rc)
			if err != nil {
				return err
			}

			plan, err := engine.NewPlanner(a.catalog).BuildPlan(rc)
			if err != nil {
				return err
			}
			if err := a.out.plan(plan, a.cfg.Retry.MaxAttempts); err != nil {
				return err
			}

			violations, err := a.guard.EvaluatePlan(ctx, plan)
			if err != nil {
				return err
			}
			a.out.violations(violations)

			return a.guard.Check(ctx, plan)
		},
	}

	addPlatformFlag(cmd, opts)
	return cmd
}
