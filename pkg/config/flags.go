package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfroyo/devprovision/pkg/engine"
)

// Flags are the mode switches given on the command line.
type Flags struct {
	CI           bool
	ProductionCI bool
	Container    bool

	// Platform overrides host detection for inspection commands, in
	// vendor/codename form.
	Platform string
}

// Modes resolves the flags into run modes. Production CI implies CI.
func (f Flags) Modes() engine.Modes {
	return engine.Modes{
		CI:           f.CI || f.ProductionCI,
		ProductionCI: f.ProductionCI,
		Container:    f.Container,
	}
}

// Build constructs the immutable run context for cfg and flags. The platform
// is left unset unless Flags.Platform is given; the pipeline fills it in from
// the gate.
func Build(cfg *Config, flags Flags) (engine.RunContext, error) {
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return engine.RunContext{}, fmt.Errorf("failed to resolve project root: %w", err)
	}

	profile := cfg.Profile
	if profile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return engine.RunContext{}, fmt.Errorf("failed to locate home directory: %w", err)
		}
		profile = filepath.Join(home, ".bash_profile")
	}

	rc := engine.RunContext{
		Modes: flags.Modes(),
		Paths: engine.DefaultPaths(root, cfg.VenvPath, profile),
	}

	if flags.Platform != "" {
		id, err := engine.ParsePlatformIdentity(flags.Platform)
		if err != nil {
			return engine.RunContext{}, err
		}
		rc.Platform = id
	}

	return rc, nil
}
