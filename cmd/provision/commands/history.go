package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/devprovision/pkg/stores"
)

func newHistoryCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent provisioning runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			store, err := a.requireHistory(ctx)
			if errors.Is(err, stores.ErrNoHistory) {
				return a.out.runs([]*stores.Run{})
			}
			if err != nil {
				return err
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			return a.out.runs(runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	cmd.AddCommand(newHistoryShowCommand(opts))
	cmd.AddCommand(newHistoryPruneCommand(opts))
	return cmd
}

func newHistoryShowCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the steps and events of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			store, err := a.requireHistory(ctx)
			if errors.Is(err, stores.ErrNoHistory) {
				return fmt.Errorf("run %s: %w", args[0], stores.ErrNotFound)
			}
			if err != nil {
				return err
			}

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			results, err := store.ListStepResults(ctx, run.ID)
			if err != nil {
				return err
			}
			events, err := store.ListEvents(ctx, run.ID)
			if err != nil {
				return err
			}
			return a.out.run(run, results, events)
		},
	}
}

func newHistoryPruneCommand(opts *options) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			store, err := a.requireHistory(ctx)
			if errors.Is(err, stores.ErrNoHistory) {
				a.out.println("Deleted 0 runs")
				return nil
			}
			if err != nil {
				return err
			}

			n, err := store.DeleteRunsBefore(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			a.out.println(fmt.Sprintf("Deleted %d runs", n))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete runs started before this age")
	return cmd
}
