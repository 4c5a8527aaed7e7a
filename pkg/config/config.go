package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/devprovision/pkg/engine"
	"github.com/openfroyo/devprovision/pkg/policy"
	"github.com/openfroyo/devprovision/pkg/telemetry"
)

// DefaultFile is the config file looked up under the project root when no
// path is given.
const DefaultFile = "tools/provision.yaml"

// DefaultVenvPath is where the python virtualenv is provisioned.
const DefaultVenvPath = "/srv/zulip-py3-venv"

// Config is the operator configuration of the provisioning tool.
type Config struct {
	// ProjectRoot is the source checkout being provisioned.
	ProjectRoot string `yaml:"project_root" validate:"required"`

	// VenvPath is the python virtualenv activated by the shell profile.
	VenvPath string `yaml:"venv_path" validate:"required"`

	// Sudo is the argv prefix for elevated commands.
	Sudo []string `yaml:"sudo" validate:"dive,required"`

	// Profile is the shell profile that receives the activation fragment.
	// Empty means ~/.bash_profile.
	Profile string `yaml:"profile"`

	// CatalogPath overrides the embedded package catalog.
	CatalogPath string `yaml:"catalog_path"`

	Retry   RetryConfig             `yaml:"retry"`
	History HistoryConfig           `yaml:"history"`
	Policy  PolicyConfig            `yaml:"policy"`
	Logging telemetry.LoggingConfig `yaml:"logging"`
	Tracing telemetry.TracingConfig `yaml:"tracing"`
	Metrics telemetry.MetricsConfig `yaml:"metrics"`
}

// RetryConfig bounds retries of flaky network steps.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" validate:"min=1,max=10"`
}

// HistoryConfig locates the run history database.
type HistoryConfig struct {
	// Path of the SQLite database; empty disables history.
	Path string `yaml:"path"`
}

// PolicyConfig configures the plan guard.
type PolicyConfig struct {
	// Paths are extra .rego files or directories loaded after the built-ins.
	Paths []string `yaml:"paths"`

	// Disabled names policies that are not evaluated.
	Disabled []string `yaml:"disabled" validate:"dive,required"`

	ElevatedPrograms []string `yaml:"elevated_programs" validate:"dive,required"`
	ElevatedPrefixes []string `yaml:"elevated_prefixes" validate:"dive,required"`
}

// Default returns the configuration used when no file is present.
func Default(projectRoot string) *Config {
	tc := telemetry.DefaultConfig()
	tc.Metrics.Textfile = filepath.Join("var", "log", "provision.prom")

	data := policy.DefaultData()
	return &Config{
		ProjectRoot: projectRoot,
		VenvPath:    DefaultVenvPath,
		Sudo:        []string{"sudo"},
		Retry:       RetryConfig{MaxAttempts: engine.DefaultMaxAttempts},
		History:     HistoryConfig{Path: filepath.Join("var", "provision", "history.db")},
		Policy: PolicyConfig{
			ElevatedPrograms: data.ElevatedPrograms,
			ElevatedPrefixes: data.ElevatedPrefixes,
		},
		Logging: tc.Logging,
		Tracing: tc.Tracing,
		Metrics: tc.Metrics,
	}
}

// Load reads the config file at path over the defaults for projectRoot. An
// empty path looks for DefaultFile under the project root and falls back to
// the defaults when it does not exist; an explicit path must exist.
// Relative paths in the result are resolved against the project root.
func Load(projectRoot, path string) (*Config, error) {
	cfg := Default(projectRoot)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(projectRoot, DefaultFile)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, engine.NewConfigurationIntegrityError("parse %s: %v", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, engine.NewConfigurationIntegrityError("read config: %v", err)
	}

	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = projectRoot
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the configuration. Failures are reported as
// *engine.ConfigurationIntegrityError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return engine.NewConfigurationIntegrityError("invalid config: %s", strings.Join(msgs, "; "))
		}
		return engine.NewConfigurationIntegrityError("invalid config: %v", err)
	}
	return nil
}

// Telemetry returns the telemetry section as a telemetry.Config.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Logging = c.Logging
	tc.Tracing = c.Tracing
	tc.Metrics = c.Metrics
	return tc
}

// PolicyData returns the allow-list document for the plan guard.
func (c *Config) PolicyData() policy.Data {
	return policy.Data{
		ElevatedPrograms: c.Policy.ElevatedPrograms,
		ElevatedPrefixes: c.Policy.ElevatedPrefixes,
	}
}

// resolvePaths makes project-relative paths absolute.
func (c *Config) resolvePaths() {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.ProjectRoot, p)
	}

	c.CatalogPath = abs(c.CatalogPath)
	c.History.Path = abs(c.History.Path)
	c.Metrics.Textfile = abs(c.Metrics.Textfile)
	for i, p := range c.Policy.Paths {
		c.Policy.Paths[i] = abs(p)
	}

	if out := c.Logging.Output; out != "" && out != "stdout" && out != "stderr" {
		c.Logging.Output = abs(out)
	}
	if out := c.Tracing.Output; out != "" {
		c.Tracing.Output = abs(out)
	}
}
