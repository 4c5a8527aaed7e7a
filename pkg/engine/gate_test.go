package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeArch(t *testing.T) {
	tests := []struct {
		machine string
		want    string
		wantErr bool
	}{
		{machine: "x86_64", want: "amd64"},
		{machine: "amd64", want: "amd64"},
		{machine: "i686", want: "i386"},
		{machine: "i386", want: "i386"},
		{machine: " X86_64\n", want: "amd64"},
		{machine: "aarch64", wantErr: true},
		{machine: "armv7l", wantErr: true},
		{machine: "ppc64le", wantErr: true},
		{machine: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.machine, func(t *testing.T) {
			got, err := NormalizeArch(tt.machine)
			if tt.wantErr {
				var archErr *UnsupportedArchitectureError
				require.True(t, errors.As(err, &archErr))
				assert.Equal(t, ErrorKindUnsupportedArchitecture, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGateRejectsArchitectureBeforeReleaseProbe(t *testing.T) {
	probe := &recordingProbe{id: xenial}
	gate := NewPlatformGate(StaticArch("aarch64"), probe)

	_, err := gate.Check(context.Background(), fakeCatalog{}.SupportMatrix())
	var archErr *UnsupportedArchitectureError
	require.True(t, errors.As(err, &archErr))
	assert.Equal(t, "aarch64", archErr.Machine)
	assert.Zero(t, probe.calls)
}

func TestGateCheck(t *testing.T) {
	matrix := fakeCatalog{}.SupportMatrix()

	tests := []struct {
		name    string
		id      PlatformIdentity
		wantErr bool
	}{
		{"xenial", xenial, false},
		{"trusty", trusty, false},
		{"unsupported codename", PlatformIdentity{Vendor: "Ubuntu", Codename: "bionic"}, true},
		{"unsupported vendor", PlatformIdentity{Vendor: "Debian", Codename: "xenial"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewPlatformGate(StaticArch("x86_64"), StaticRelease(tt.id))
			host, err := gate.Check(context.Background(), matrix)
			if tt.wantErr {
				var platformErr *UnsupportedPlatformError
				require.True(t, errors.As(err, &platformErr))
				assert.Equal(t, tt.id.Vendor, platformErr.Vendor)
				assert.Equal(t, tt.id.Codename, platformErr.Codename)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Host{Identity: tt.id, Arch: "amd64"}, host)
		})
	}
}

func TestCheckRepository(t *testing.T) {
	root := t.TempDir()

	err := CheckRepository(root)
	var repoErr *RepositoryMissingError
	require.True(t, errors.As(err, &repoErr))
	assert.Equal(t, root, repoErr.Root)
	assert.Equal(t, ErrorKindRepositoryMissing, KindOf(err))

	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	assert.NoError(t, CheckRepository(root))
}

func TestParsePlatformIdentity(t *testing.T) {
	id, err := ParsePlatformIdentity("Ubuntu/xenial")
	require.NoError(t, err)
	assert.Equal(t, xenial, id)
	assert.Equal(t, "Ubuntu/xenial", id.String())

	for _, bad := range []string{"", "Ubuntu", "/xenial", "Ubuntu/"} {
		_, err := ParsePlatformIdentity(bad)
		assert.Error(t, err, bad)
	}
}

func TestSupportMatrixIdentities(t *testing.T) {
	matrix := SupportMatrix{
		"Ubuntu": {"trusty", "xenial"},
		"Debian": {"stretch"},
	}
	assert.Equal(t, []PlatformIdentity{
		{Vendor: "Debian", Codename: "stretch"},
		trusty,
		xenial,
	}, matrix.Identities())
	assert.True(t, matrix.Supports(xenial))
	assert.False(t, matrix.Supports(PlatformIdentity{Vendor: "Debian", Codename: "xenial"}))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorKindNone},
		{"platform", &UnsupportedPlatformError{}, ErrorKindUnsupportedPlatform},
		{"integrity", NewConfigurationIntegrityError("x"), ErrorKindConfigurationIntegrity},
		{"policy", &PolicyViolationError{Violations: []string{"x"}}, ErrorKindPolicyViolation},
		{"io through step", &StepError{Step: "s", Err: &os.PathError{Op: "mkdir", Path: "/x", Err: os.ErrPermission}}, ErrorKindIO},
		{"cancelled", context.Canceled, ErrorKindCancelled},
		{"unknown", errors.New("boom"), ErrorKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
