// Package runner executes external commands for the provisioning pipeline.
//
// Every command is an explicit argument vector; nothing is passed through a
// shell. Elevated commands are prefixed individually (sudo by default) so the
// provisioning process itself never runs privileged.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls a single invocation.
type Options struct {
	// Elevated prefixes the command with the privilege-escalation prefix.
	Elevated bool

	// CaptureOutput returns stdout/stderr instead of streaming them.
	CaptureOutput bool

	// Dir overrides the working directory for this invocation.
	Dir string

	// Env adds KEY=VALUE pairs to the inherited environment.
	Env []string
}

// Output is the result of a completed command.
type Output struct {
	Argv     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExternalCommandError reports a command that exited non-zero or could not
// be started. ExitCode is -1 when the process never ran.
type ExternalCommandError struct {
	Argv     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExternalCommandError) Error() string {
	cmd := strings.Join(e.Argv, " ")
	if e.ExitCode < 0 {
		return fmt.Sprintf("command %q could not be run: %v", cmd, e.Err)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("command %q exited with status %d: %s", cmd, e.ExitCode, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("command %q exited with status %d", cmd, e.ExitCode)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ExternalCommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec. It holds no retry logic.
type ExecRunner struct {
	// Dir is the default working directory (the project root).
	Dir string

	// SudoPrefix is prepended to elevated commands. Empty runs them as-is.
	SudoPrefix []string

	// Stdout and Stderr receive streamed output; they default to the
	// process's own streams.
	Stdout io.Writer
	Stderr io.Writer

	logger zerolog.Logger
}

// NewExecRunner creates a runner rooted at dir.
func NewExecRunner(dir string, sudoPrefix []string, logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{
		Dir:        dir,
		SudoPrefix: sudoPrefix,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		logger:     logger.With().Str("component", "runner").Logger(),
	}
}

// Command returns the full argv that Run would execute for argv and opts.
func (r *ExecRunner) Command(argv []string, opts Options) []string {
	if !opts.Elevated || len(r.SudoPrefix) == 0 {
		return append([]string(nil), argv...)
	}
	full := make([]string, 0, len(r.SudoPrefix)+len(argv))
	full = append(full, r.SudoPrefix...)
	return append(full, argv...)
}

// Run executes argv and blocks until it exits. No timeout is imposed; ctx
// cancellation kills the child.
func (r *ExecRunner) Run(ctx context.Context, argv []string, opts Options) (*Output, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, &ExternalCommandError{Argv: argv, ExitCode: -1, Err: errors.New("empty command")}
	}

	full := r.Command(argv, opts)
	cmd := exec.CommandContext(ctx, full[0], full[1:]...)

	cmd.Dir = r.Dir
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	if opts.CaptureOutput {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = r.stdout()
		cmd.Stderr = r.stderr()
	}

	r.logger.Debug().
		Strs("argv", full).
		Str("dir", cmd.Dir).
		Bool("elevated", opts.Elevated).
		Msg("Running command")

	start := time.Now()
	err := cmd.Run()
	out := &Output{
		Argv:     full,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return out, &ExternalCommandError{Argv: full, ExitCode: out.ExitCode, Stderr: out.Stderr, Err: err}
		}
		return out, &ExternalCommandError{Argv: full, ExitCode: -1, Err: err}
	}

	return out, nil
}

func (r *ExecRunner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *ExecRunner) stderr() io.Writer {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}
