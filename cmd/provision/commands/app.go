package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/devprovision/pkg/catalog"
	"github.com/openfroyo/devprovision/pkg/config"
	"github.com/openfroyo/devprovision/pkg/engine"
	"github.com/openfroyo/devprovision/pkg/policy"
	"github.com/openfroyo/devprovision/pkg/resources"
	"github.com/openfroyo/devprovision/pkg/runner"
	"github.com/openfroyo/devprovision/pkg/stores"
	"github.com/openfroyo/devprovision/pkg/telemetry"
)

// app wires the configured components of one invocation.
type app struct {
	cfg     *config.Config
	tel     *telemetry.Telemetry
	catalog *catalog.Catalog
	guard   *policy.Engine
	runner  *runner.ExecRunner
	history *stores.SQLiteStore
	logger  zerolog.Logger
	out     *printer
}

// newApp loads configuration and builds every component. Nothing here
// mutates the host.
func newApp(cmd *cobra.Command, opts *options) (*app, error) {
	ctx := cmd.Context()
	root := opts.projectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}

	cfg, err := config.Load(root, opts.configPath)
	if err != nil {
		return nil, err
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if opts.logFile != "" {
		cfg.Logging.Output = opts.logFile
		cfg.Logging.Format = "json"
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry(opts.version))
	if err != nil {
		return nil, engine.NewConfigurationIntegrityError("telemetry: %v", err)
	}
	logger := tel.Logger.Zerolog()
	cmd.SetContext(tel.Logger.WithContext(ctx))

	a := &app{
		cfg:    cfg,
		tel:    tel,
		runner: runner.NewExecRunner(cfg.ProjectRoot, cfg.Sudo, logger),
		logger: logger,
		out:    newPrinter(cmd.OutOrStdout(), opts.jsonOutput),
	}

	if cfg.CatalogPath != "" {
		a.catalog, err = catalog.LoadFile(cfg.CatalogPath)
	} else {
		a.catalog, err = catalog.Load()
	}
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.guard, err = policy.NewEngine(logger, cfg.PolicyData())
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := a.guard.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			_ = a.Close(ctx)
			return nil, engine.NewConfigurationIntegrityError("%v", err)
		}
	}

	for _, name := range slices.Concat(cfg.Policy.Disabled, opts.disabledPolicies) {
		if err := a.guard.DisablePolicy(name); err != nil {
			_ = a.Close(ctx)
			return nil, engine.NewConfigurationIntegrityError("%v", err)
		}
	}

	logger.Debug().
		Str("project_root", cfg.ProjectRoot).
		Str("catalog", a.catalog.Name()).
		Int("policies", len(a.guard.ListPolicies())).
		Msg("Configuration loaded")

	return a, nil
}

// historyRecorder returns an observer that opens the history store once the
// platform gate has passed, or nil when history is disabled.
func (a *app) historyRecorder() *stores.Recorder {
	if a.cfg.History.Path == "" {
		return nil
	}
	return stores.NewDeferredRecorder(func(ctx context.Context) (*stores.SQLiteStore, error) {
		store, err := stores.Open(ctx, a.cfg.History.Path)
		if err != nil {
			return nil, err
		}
		a.history = store
		return store, nil
	}, a.logger)
}

// requireHistory opens an existing run history store for reading. It returns
// stores.ErrNoHistory, without creating anything, when no run has been
// recorded yet.
func (a *app) requireHistory(ctx context.Context) (*stores.SQLiteStore, error) {
	if a.cfg.History.Path == "" {
		return nil, errors.New("run history is disabled (history.path is empty)")
	}
	store, err := stores.OpenExisting(ctx, a.cfg.History.Path)
	if err != nil {
		return nil, err
	}
	a.history = store
	return store, nil
}

// gate returns the platform gate for the real host.
func (a *app) gate() *engine.PlatformGate {
	return engine.NewPlatformGate(engine.UnameProbe{}, engine.DefaultReleaseProbe(a.runner))
}

// host resolves the identity to inspect: the --platform override when given,
// otherwise the detected host. Either way it must be supported.
func (a *app) host(ctx context.Context, rc engine.RunContext) (engine.RunContext, error) {
	matrix := a.catalog.SupportMatrix()
	if !rc.Platform.IsZero() {
		if err := engine.Validate(rc.Platform, matrix); err != nil {
			return rc, err
		}
		return rc, nil
	}

	host, err := a.gate().Check(ctx, matrix)
	if err != nil {
		return rc, err
	}
	return rc.WithPlatform(host), nil
}

// pipeline builds the provisioning pipeline with the given observers in
// addition to the telemetry ones.
func (a *app) pipeline(dryRun bool, observers ...engine.Observer) *engine.Pipeline {
	executor := engine.Executor{
		Runner:    a.runner,
		Resources: resources.NewInitializer(a.runner, a.logger),
	}

	return engine.NewPipeline(
		a.gate(),
		a.catalog,
		engine.NewPlanner(a.catalog),
		executor,
		engine.WithRetryPolicy(engine.NewRetryPolicy(a.cfg.Retry.MaxAttempts, a.logger)),
		engine.WithGuard(a.guard),
		engine.WithObservers(append(a.tel.Observers(), observers...)...),
		engine.WithLogger(a.logger),
		engine.WithDryRun(dryRun),
		engine.WithRepositoryCheck(true),
	)
}

// writeMetrics writes the metrics textfile for a run that got past the
// platform gate. Other commands and rejected runs leave the file alone.
func (a *app) writeMetrics() {
	if !a.tel.Metrics.PlatformValidated() {
		return
	}
	if err := a.tel.Metrics.WriteTextfile(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to write metrics textfile")
	}
}

// Close flushes telemetry and closes the history store.
func (a *app) Close(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	errs = append(errs, a.tel.Shutdown(ctx))
	return errors.Join(errs...)
}
