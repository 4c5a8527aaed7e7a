package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/devprovision/pkg/engine"
)

func writeConfig(t *testing.T, root, body string) string {
	t.Helper()
	path := filepath.Join(root, DefaultFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, DefaultVenvPath, cfg.VenvPath)
	assert.Equal(t, []string{"sudo"}, cfg.Sudo)
	assert.Equal(t, engine.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, filepath.Join(root, "var", "provision", "history.db"), cfg.History.Path)
	assert.Equal(t, filepath.Join(root, "var", "log", "provision.prom"), cfg.Metrics.Textfile)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.Contains(t, cfg.Policy.ElevatedPrograms, "apt-get")
}

func TestLoadOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
venv_path: /opt/venv
sudo: ["doas"]
retry:
  max_attempts: 3
history:
  path: ""
catalog_path: tools/catalog.cue
policy:
  paths: ["tools/policies"]
  elevated_programs: ["apt-get"]
  disabled: ["step-naming"]
logging:
  level: debug
tracing:
  exporter: stdout
  output: var/log/trace.json
`)

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, "/opt/venv", cfg.VenvPath)
	assert.Equal(t, []string{"doas"}, cfg.Sudo)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Empty(t, cfg.History.Path)
	assert.Equal(t, filepath.Join(root, "tools", "catalog.cue"), cfg.CatalogPath)
	assert.Equal(t, []string{filepath.Join(root, "tools", "policies")}, cfg.Policy.Paths)
	assert.Equal(t, []string{"apt-get"}, cfg.PolicyData().ElevatedPrograms)
	assert.Equal(t, []string{"step-naming"}, cfg.Policy.Disabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, filepath.Join(root, "var", "log", "trace.json"), cfg.Tracing.Output)

	// Untouched nested fields keep their defaults.
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.NotEmpty(t, cfg.Policy.ElevatedPrefixes)

	tc := cfg.Telemetry("1.2.3")
	assert.Equal(t, "1.2.3", tc.ServiceVersion)
	assert.Equal(t, "stdout", tc.Tracing.Exporter)
	require.NoError(t, tc.Validate())
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, err := Load(t.TempDir(), "/nonexistent/provision.yaml")
	require.Error(t, err)
	assert.Equal(t, engine.ErrorKindConfigurationIntegrity, engine.KindOf(err))
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed yaml", "retry: [1, 2"},
		{"zero attempts", "retry:\n  max_attempts: 0\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"otlp without endpoint", "tracing:\n  exporter: otlp\n"},
		{"unknown exporter", "tracing:\n  exporter: zipkin\n"},
		{"empty sudo element", "sudo: [\"\"]\n"},
		{"empty venv", "venv_path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, tt.body)

			_, err := Load(root, "")
			require.Error(t, err)

			var integrity *engine.ConfigurationIntegrityError
			assert.True(t, errors.As(err, &integrity), "got %T: %v", err, err)
		})
	}
}

func TestFlagsModes(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		want  engine.Modes
	}{
		{"development", Flags{}, engine.Modes{}},
		{"ci", Flags{CI: true}, engine.Modes{CI: true}},
		{"production ci implies ci", Flags{ProductionCI: true}, engine.Modes{CI: true, ProductionCI: true}},
		{"container", Flags{Container: true}, engine.Modes{Container: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.flags.Modes())
		})
	}
}

func TestBuild(t *testing.T) {
	root := t.TempDir()
	cfg := Default(root)
	cfg.Profile = filepath.Join(root, "profile")

	rc, err := Build(cfg, Flags{Container: true, Platform: "Ubuntu/xenial"})
	require.NoError(t, err)

	assert.Equal(t, engine.PlatformIdentity{Vendor: "Ubuntu", Codename: "xenial"}, rc.Platform)
	assert.True(t, rc.Modes.Container)
	assert.Equal(t, root, rc.Paths.ProjectRoot)
	assert.Equal(t, filepath.Join(root, "var", "log"), rc.Paths.LogDir)
	assert.Equal(t, DefaultVenvPath, rc.Paths.VenvPath)
	assert.Equal(t, cfg.Profile, rc.Paths.ProfilePath)

	_, err = Build(cfg, Flags{Platform: "xenial"})
	assert.Error(t, err)
}
