package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openfroyo/devprovision/pkg/config"
)

// options are the flags shared by every command.
type options struct {
	version     string
	configPath  string
	projectRoot string
	logFile     string
	jsonOutput  bool
	dryRun      bool
	flags       config.Flags

	disabledPolicies []string
}

// flagAliases maps the historical flag names onto the current ones.
var flagAliases = map[string]string{
	"travis":            "ci",
	"production-travis": "production-ci",
	"docker":            "container",
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &options{version: version}

	rootCmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision a development environment",
		Long: `provision brings a fresh Ubuntu machine to a working development state.

It validates the host platform before touching anything, installs the
platform's package set, sets up the language environments, creates the
project directories and bootstraps the local services. Every step is safe to
re-run after a partial failure.

Running provision without a subcommand is the same as 'provision run'.`,
		Version:            fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		Args:               cobra.ArbitraryArgs,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvision(cmd, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file path (default <project>/"+config.DefaultFile+")")
	pf.StringVar(&opts.projectRoot, "project-root", "", "project checkout to provision (default current directory)")
	pf.StringVar(&opts.logFile, "log-file", "", "write JSON logs to this file instead of the console")
	pf.BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")
	pf.BoolVar(&opts.flags.CI, "ci", false, "set up a continuous-integration environment")
	pf.BoolVar(&opts.flags.ProductionCI, "production-ci", false, "CI mode without local service and database bootstrap (implies --ci)")
	pf.BoolVar(&opts.flags.Container, "container", false, "bootstrap the database cluster for a container")
	pf.StringSliceVar(&opts.disabledPolicies, "disable-policy", nil, "skip the named plan policy (repeatable)")

	rootCmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate the platform and print the plan without executing it")
	rootCmd.SetGlobalNormalizationFunc(normalizeFlag)

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newPlanCommand(opts))
	rootCmd.AddCommand(newCheckCommand(opts))
	rootCmd.AddCommand(newCatalogCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))

	return rootCmd
}

func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if alias, ok := flagAliases[name]; ok {
		name = alias
	}
	return pflag.NormalizedName(name)
}

// addPlatformFlag registers --platform for the inspection commands.
func addPlatformFlag(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVar(&opts.flags.Platform, "platform", "", "inspect this vendor/codename instead of the detected host (e.g. Ubuntu/xenial)")
}
