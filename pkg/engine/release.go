package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/openfroyo/devprovision/pkg/runner"
)

// LSBRelease detects the platform with lsb_release, capturing its output.
type LSBRelease struct {
	Runner CommandRunner
}

// Release implements ReleaseProbe.
func (l LSBRelease) Release(ctx context.Context) (PlatformIdentity, error) {
	vendor, err := l.query(ctx, "-is")
	if err != nil {
		return PlatformIdentity{}, err
	}
	codename, err := l.query(ctx, "-cs")
	if err != nil {
		return PlatformIdentity{}, err
	}
	return PlatformIdentity{Vendor: vendor, Codename: codename}, nil
}

func (l LSBRelease) query(ctx context.Context, flag string) (string, error) {
	out, err := l.Runner.Run(ctx, []string{"lsb_release", flag}, runner.Options{CaptureOutput: true})
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(out.Stdout)
	if value == "" {
		return "", fmt.Errorf("lsb_release %s returned no output", flag)
	}
	return value, nil
}

// OSRelease detects the platform by parsing an os-release file.
type OSRelease struct {
	// Path defaults to /etc/os-release.
	Path string
}

// Release implements ReleaseProbe.
func (o OSRelease) Release(context.Context) (PlatformIdentity, error) {
	path := o.Path
	if path == "" {
		path = "/etc/os-release"
	}

	f, err := os.Open(path)
	if err != nil {
		return PlatformIdentity{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()

	fields := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || strings.HasPrefix(key, "#") {
			continue
		}
		fields[key] = strings.Trim(value, `"'`)
	}
	if err := scanner.Err(); err != nil {
		return PlatformIdentity{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return parseOSRelease(fields)
}

// parseOSRelease extracts vendor and codename. Older releases (e.g. trusty)
// lack VERSION_CODENAME and carry the codename inside VERSION instead:
// VERSION="14.04.5 LTS, Trusty Tahr".
func parseOSRelease(fields map[string]string) (PlatformIdentity, error) {
	vendor := fields["NAME"]
	if i := strings.IndexByte(vendor, ' '); i > 0 {
		vendor = vendor[:i]
	}
	if vendor == "" {
		return PlatformIdentity{}, errors.New("os-release has no NAME")
	}

	codename := fields["VERSION_CODENAME"]
	if codename == "" {
		codename = fields["UBUNTU_CODENAME"]
	}
	if codename == "" {
		if _, rest, ok := strings.Cut(fields["VERSION"], ","); ok {
			if words := strings.Fields(rest); len(words) > 0 {
				codename = strings.ToLower(words[0])
			}
		}
	}
	if codename == "" {
		return PlatformIdentity{}, errors.New("os-release has no release codename")
	}

	return PlatformIdentity{Vendor: vendor, Codename: codename}, nil
}

// DefaultReleaseProbe uses lsb_release when it is installed and falls back
// to /etc/os-release otherwise.
func DefaultReleaseProbe(r CommandRunner) ReleaseProbe {
	if _, err := exec.LookPath("lsb_release"); err == nil {
		return LSBRelease{Runner: r}
	}
	return OSRelease{}
}
