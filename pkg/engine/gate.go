package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Host is the detected host: its platform identity and normalized architecture.
type Host struct {
	Identity PlatformIdentity `json:"identity"`
	Arch     string           `json:"arch"`
}

// archAliases maps uname machine names onto the supported architectures.
var archAliases = map[string]string{
	"x86_64": "amd64",
	"amd64":  "amd64",
	"i386":   "i386",
	"i486":   "i386",
	"i586":   "i386",
	"i686":   "i386",
	"x86":    "i386",
}

// NormalizeArch maps a machine name onto a supported architecture.
func NormalizeArch(machine string) (string, error) {
	arch, ok := archAliases[strings.ToLower(strings.TrimSpace(machine))]
	if !ok {
		return "", &UnsupportedArchitectureError{Machine: machine}
	}
	return arch, nil
}

// PlatformGate detects the host and rejects unsupported combinations before
// any mutation occurs.
type PlatformGate struct {
	arch    ArchProbe
	release ReleaseProbe
}

// NewPlatformGate creates a gate from the given probes.
func NewPlatformGate(arch ArchProbe, release ReleaseProbe) *PlatformGate {
	return &PlatformGate{arch: arch, release: release}
}

// Detect reports the host identity. The architecture is checked first so an
// unsupported machine is rejected before any external command is issued.
func (g *PlatformGate) Detect(ctx context.Context) (Host, error) {
	machine, err := g.arch.Machine()
	if err != nil {
		return Host{}, fmt.Errorf("failed to detect architecture: %w", err)
	}

	arch, err := NormalizeArch(machine)
	if err != nil {
		return Host{}, err
	}

	id, err := g.release.Release(ctx)
	if err != nil {
		return Host{}, fmt.Errorf("failed to detect platform: %w", err)
	}

	return Host{Identity: id, Arch: arch}, nil
}

// Validate fails with *UnsupportedPlatformError when id is absent from matrix.
func Validate(id PlatformIdentity, matrix SupportMatrix) error {
	if !matrix.Supports(id) {
		return &UnsupportedPlatformError{Vendor: id.Vendor, Codename: id.Codename}
	}
	return nil
}

// Check runs Detect followed by Validate.
func (g *PlatformGate) Check(ctx context.Context, matrix SupportMatrix) (Host, error) {
	host, err := g.Detect(ctx)
	if err != nil {
		return Host{}, err
	}
	if err := Validate(host.Identity, matrix); err != nil {
		return Host{}, err
	}
	return host, nil
}

// CheckRepository verifies the project root is a git checkout.
func CheckRepository(root string) error {
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		if os.IsNotExist(err) {
			return &RepositoryMissingError{Root: root}
		}
		return fmt.Errorf("failed to inspect project root: %w", err)
	}
	return nil
}

// StaticArch is an ArchProbe that always reports the same machine name.
type StaticArch string

// Machine implements ArchProbe.
func (s StaticArch) Machine() (string, error) {
	return string(s), nil
}

// StaticRelease is a ReleaseProbe that always reports the same identity.
type StaticRelease PlatformIdentity

// Release implements ReleaseProbe.
func (s StaticRelease) Release(context.Context) (PlatformIdentity, error) {
	return PlatformIdentity(s), nil
}
