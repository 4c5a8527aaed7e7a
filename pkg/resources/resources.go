// Package resources provides idempotent filesystem provisioning: directories,
// static data files, stale symlink cleanup and shell profile fragments.
package resources

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/openfroyo/devprovision/pkg/runner"
	"github.com/rs/zerolog"
)

// Runner executes the elevated helpers (cp, rm) used when the invoking user
// cannot write the target.
type Runner interface {
	Run(ctx context.Context, argv []string, opts runner.Options) (*runner.Output, error)
}

// IOError reports a failed filesystem operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *IOError) Unwrap() error {
	return e.Err
}

const (
	profileBegin = "# >>> devprovision >>>"
	profileEnd   = "# <<< devprovision <<<"
)

// Initializer implements the pipeline's resource operations.
type Initializer struct {
	runner Runner
	logger zerolog.Logger
}

// NewInitializer creates an Initializer that elevates through r.
func NewInitializer(r Runner, logger zerolog.Logger) *Initializer {
	return &Initializer{
		runner: r,
		logger: logger.With().Str("component", "resources").Logger(),
	}
}

// EnsureDirectory creates path and any missing parents. An existing
// directory is success; an existing non-directory is an error.
func (i *Initializer) EnsureDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: path, Err: err}
	}
	i.logger.Debug().Str("path", path).Msg("Directory present")
	return nil
}

// EnsureFileCopied copies src over dst. The copy always overwrites: the
// content is static and versioned by the resolved dependency, not by dst.
// Elevated copies go through cp under the runner's privilege prefix.
func (i *Initializer) EnsureFileCopied(ctx context.Context, src, dst string, elevated bool) error {
	if _, err := os.Stat(src); err != nil {
		return &IOError{Op: "stat", Path: src, Err: err}
	}

	if elevated {
		if _, err := i.runner.Run(ctx, []string{"cp", src, dst}, runner.Options{Elevated: true}); err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
		}
		return nil
	}

	if err := copyFile(src, dst); err != nil {
		return &IOError{Op: "copy", Path: dst, Err: err}
	}
	i.logger.Debug().Str("src", src).Str("dst", dst).Msg("File copied")
	return nil
}

// RemoveStaleSymlink removes path when it is a symbolic link so a later step
// can create a real directory there without writing through the link.
// Missing paths and real files or directories are left untouched.
func (i *Initializer) RemoveStaleSymlink(ctx context.Context, path string, elevated bool) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &IOError{Op: "lstat", Path: path, Err: err}
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return nil
	}

	i.logger.Info().Str("path", path).Msg("Removing stale symlink")
	if elevated {
		if _, err := i.runner.Run(ctx, []string{"rm", "-f", path}, runner.Options{Elevated: true}); err != nil {
			return fmt.Errorf("failed to remove symlink %s: %w", path, err)
		}
		return nil
	}
	if err := os.Remove(path); err != nil {
		return &IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// EnsureProfileFragment installs lines in the profile at path between marker
// comments. An existing managed block is replaced in place, so repeated runs
// leave exactly one copy.
func (i *Initializer) EnsureProfileFragment(path string, lines []string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return &IOError{Op: "read", Path: path, Err: err}
	}

	updated := renderProfile(string(existing), lines)
	if updated == string(existing) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	i.logger.Debug().Str("path", path).Msg("Profile fragment installed")
	return nil
}

func renderProfile(existing string, lines []string) string {
	var block strings.Builder
	block.WriteString(profileBegin + "\n")
	for _, line := range lines {
		block.WriteString(line + "\n")
	}
	block.WriteString(profileEnd + "\n")

	start := strings.Index(existing, profileBegin)
	if start >= 0 {
		if end := strings.Index(existing[start:], profileEnd); end >= 0 {
			tail := existing[start+end+len(profileEnd):]
			tail = strings.TrimPrefix(tail, "\n")
			return existing[:start] + block.String() + tail
		}
	}

	if existing != "" && !strings.HasSuffix(existing, "\n") {
		existing += "\n"
	}
	return existing + block.String()
}

// copyFile writes src to a temporary file beside dst and renames it into
// place, keeping the source permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
