package engine

import (
	"fmt"
	"path/filepath"
)

const (
	// DatabaseDependency is the logical name of the versioned database engine.
	DatabaseDependency = "postgresql"

	groongaPPA    = "ppa:groonga/ppa"
	stopwordsFile = "zulip_english.stop"
)

// aptPrerequisites are needed by the repository registration tools.
var aptPrerequisites = []string{"lsb-release", "software-properties-common"}

// managedServices are restarted in CI and container modes, in this order.
var managedServices = []string{"rabbitmq-server", "redis-server", "memcached"}

// DefaultPlanner builds the standard development provisioning plan. Mode
// flags are consumed here; the resulting plan carries no conditionals.
type DefaultPlanner struct {
	catalog DependencyCatalog
}

// NewPlanner creates a planner backed by the given catalog.
func NewPlanner(catalog DependencyCatalog) *DefaultPlanner {
	return &DefaultPlanner{catalog: catalog}
}

// BuildPlan resolves rc into the concrete step sequence. rc.Platform must
// already be validated against the catalog's support matrix.
func (p *DefaultPlanner) BuildPlan(rc RunContext) (*Plan, error) {
	if err := Validate(rc.Platform, p.catalog.SupportMatrix()); err != nil {
		return nil, err
	}

	dbVersion := p.catalog.Version(DatabaseDependency, rc.Platform)
	packages := p.catalog.Resolve(rc.Platform)

	b := &planBuilder{}

	// Repository registration.
	b.stage(StateRepositoriesConfigured)
	b.command("apt-update-bootstrap", true, "apt-get", "update")
	b.command("install-apt-prerequisites", true, append([]string{"apt-get", "install", "-y"}, aptPrerequisites...)...)
	b.command("setup-apt-repo", true, "./scripts/lib/setup-apt-repo")
	b.retryable().command("add-groonga-repository", true, "add-apt-repository", "-y", groongaPPA)

	// Package installation.
	b.stage(StatePackagesInstalled)
	b.command("apt-update", true, "apt-get", "update")
	install := []string{"apt-get", "-y", "install", "--no-install-recommends"}
	for _, pkg := range packages {
		install = append(install, pkg.String())
	}
	b.command("apt-install", true, install...)

	// Language runtime environments.
	b.stage(StateEnvironmentReady)
	if rc.Modes.CI {
		b.command("setup-venv", false,
			"tools/setup/setup_venvs.py", "--ci",
			"--python", "python3",
			"--requirements", filepath.Join(rc.Paths.ProjectRoot, "requirements", "py3_dev.txt"))
	} else {
		b.command("setup-venv", false, "tools/setup/setup_venvs.py")
	}
	b.add("shell-profile", ProfileAction{
		Path: rc.Paths.ProfilePath,
		Lines: []string{
			"source .bashrc",
			"source " + filepath.Join(rc.Paths.VenvPath, "bin", "activate"),
		},
	})
	b.command("install-node", true, "tools/setup/install-node")
	b.add("remove-stale-node-modules-link", UnlinkAction{Path: rc.Paths.NodeModules, Elevated: true})
	b.retryable().command("install-node-modules", false, "npm", "install")

	// Directories, data files and secrets.
	b.stage(StateResourcesInitialized)
	b.add("copy-stopwords", CopyAction{
		Source:      rc.Paths.StopwordsSource,
		Destination: filepath.Join("/usr/share/postgresql", dbVersion, "tsearch_data", stopwordsFile),
		Elevated:    true,
	})
	for _, dir := range rc.Paths.Directories() {
		b.add("mkdir-"+filepath.Base(dir), DirectoryAction{Path: dir})
	}
	b.command("download-zxcvbn", false, "tools/setup/download-zxcvbn")
	b.command("build-emoji", false, "tools/setup/emoji_dump/build_emoji")
	b.command("generate-secrets", false, "scripts/setup/generate_secrets.py", "--development")

	// Services and databases.
	b.stage(StateServicesRestarted)
	switch {
	case rc.Modes.CI && !rc.Modes.ProductionCI:
		for _, svc := range managedServices {
			b.bestEffort().command("restart-"+svc, true, "service", svc, "restart")
		}
	case rc.Modes.Container:
		b.command("restart-rabbitmq-server", true, "service", "rabbitmq-server", "restart")
		b.command("drop-db-cluster", true, "pg_dropcluster", "--stop", dbVersion, "main")
		b.command("create-db-cluster", true, "pg_createcluster", "-e", "utf8", "--start", dbVersion, "main")
		b.command("restart-redis-server", true, "service", "redis-server", "restart")
		b.command("restart-memcached", true, "service", "memcached", "restart")
	}
	if !rc.Modes.ProductionCI {
		b.command("configure-rabbitmq", false, "scripts/setup/configure-rabbitmq")
		b.command("init-dev-db", false, "tools/setup/postgres-init-dev-db")
		b.command("rebuild-dev-db", false, "tools/do-destroy-rebuild-database")
		b.command("init-test-db", false, "tools/setup/postgres-init-test-db")
		b.command("rebuild-test-db", false, "tools/do-destroy-rebuild-test-database")
		b.command("compile-messages", false, "python", "./manage.py", "compilemessages")
	}

	plan := &Plan{Context: rc, Steps: b.steps}
	if err := plan.Validate(); err != nil {
		return nil, NewConfigurationIntegrityError("invalid plan: %v", err)
	}
	return plan, nil
}

// planBuilder accumulates steps. retryable and bestEffort apply to the next
// step only.
type planBuilder struct {
	steps     []Step
	current   State
	nextRetry bool
	nextSoft  bool
}

func (b *planBuilder) stage(s State) {
	b.current = s
}

func (b *planBuilder) retryable() *planBuilder {
	b.nextRetry = true
	return b
}

func (b *planBuilder) bestEffort() *planBuilder {
	b.nextSoft = true
	return b
}

func (b *planBuilder) command(name string, elevated bool, argv ...string) {
	b.add(name, CommandAction{Argv: argv, Elevated: elevated})
}

func (b *planBuilder) add(name string, action Action) {
	if b.current == "" {
		panic(fmt.Sprintf("engine: step %s added before any stage", name))
	}
	b.steps = append(b.steps, Step{
		Name:      name,
		Stage:     b.current,
		Action:    action,
		Retryable: b.nextRetry,
		Fatal:     !b.nextSoft,
	})
	b.nextRetry = false
	b.nextSoft = false
}
