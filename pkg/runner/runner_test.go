package runner

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandPrefixesElevated(t *testing.T) {
	r := NewExecRunner(t.TempDir(), []string{"sudo", "-E"}, zerolog.Nop())

	assert.Equal(t, []string{"apt-get", "update"}, r.Command([]string{"apt-get", "update"}, Options{}))
	assert.Equal(t, []string{"sudo", "-E", "apt-get", "update"},
		r.Command([]string{"apt-get", "update"}, Options{Elevated: true}))

	r.SudoPrefix = nil
	assert.Equal(t, []string{"cp", "a", "b"}, r.Command([]string{"cp", "a", "b"}, Options{Elevated: true}))
}

func TestRunCapturesOutput(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil, zerolog.Nop())

	out, err := r.Run(context.Background(), []string{"echo", "xenial"}, Options{CaptureOutput: true})
	require.NoError(t, err)
	assert.Equal(t, "xenial\n", out.Stdout)
	assert.Zero(t, out.ExitCode)
}

func TestRunStreamsToWriters(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil, zerolog.Nop())
	var stdout bytes.Buffer
	r.Stdout = &stdout

	_, err := r.Run(context.Background(), []string{"echo", "streamed"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "streamed\n", stdout.String())
}

func TestRunWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := NewExecRunner(dir, nil, zerolog.Nop())

	out, err := r.Run(context.Background(), []string{"pwd"}, Options{CaptureOutput: true})
	require.NoError(t, err)
	assert.Contains(t, out.Stdout, dir)
}

func TestRunNonZeroExit(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil, zerolog.Nop())

	out, err := r.Run(context.Background(), []string{"false"}, Options{CaptureOutput: true})
	var cmdErr *ExternalCommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Equal(t, 1, out.ExitCode)
	assert.Contains(t, cmdErr.Error(), `"false" exited with status 1`)
}

func TestRunMissingProgram(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil, zerolog.Nop())

	_, err := r.Run(context.Background(), []string{"devprovision-no-such-binary"}, Options{})
	var cmdErr *ExternalCommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, -1, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Error(), "could not be run")
}

func TestRunEmptyCommand(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil, zerolog.Nop())

	for _, argv := range [][]string{nil, {""}} {
		_, err := r.Run(context.Background(), argv, Options{})
		var cmdErr *ExternalCommandError
		require.True(t, errors.As(err, &cmdErr))
		assert.Equal(t, -1, cmdErr.ExitCode)
	}
}

func TestRunCancelled(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, []string{"sleep", "5"}, Options{})
	assert.Error(t, err)
}
