package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/openfroyo/devprovision/pkg/resources"
	"github.com/openfroyo/devprovision/pkg/runner"
)

// ErrorKind classifies a provisioning failure for reporting and history.
type ErrorKind string

const (
	// ErrorKindNone is used for results that carry no error.
	ErrorKindNone ErrorKind = ""

	// ErrorKindUnsupportedPlatform indicates the host distribution/release is not supported.
	ErrorKindUnsupportedPlatform ErrorKind = "unsupported_platform"

	// ErrorKindUnsupportedArchitecture indicates the host CPU architecture is not supported.
	ErrorKindUnsupportedArchitecture ErrorKind = "unsupported_architecture"

	// ErrorKindExternalCommand indicates an external tool exited non-zero or could not start.
	ErrorKindExternalCommand ErrorKind = "external_command"

	// ErrorKindIO indicates a filesystem provisioning failure.
	ErrorKindIO ErrorKind = "io"

	// ErrorKindConfigurationIntegrity indicates a defect in the catalog or configuration.
	ErrorKindConfigurationIntegrity ErrorKind = "configuration_integrity"

	// ErrorKindRepositoryMissing indicates the project root is not a source checkout.
	ErrorKindRepositoryMissing ErrorKind = "repository_missing"

	// ErrorKindPolicyViolation indicates the plan was rejected by the plan guard.
	ErrorKindPolicyViolation ErrorKind = "policy_violation"

	// ErrorKindCancelled indicates the operator terminated the run.
	ErrorKindCancelled ErrorKind = "cancelled"

	// ErrorKindUnknown is used for errors that fit no other kind.
	ErrorKindUnknown ErrorKind = "unknown"
)

// UnsupportedPlatformError is returned when the detected platform identity is
// absent from the support matrix.
type UnsupportedPlatformError struct {
	Vendor   string
	Codename string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: %s %s", e.Vendor, e.Codename)
}

// UnsupportedArchitectureError is returned when the host CPU is outside the
// x86 family.
type UnsupportedArchitectureError struct {
	Machine string
}

func (e *UnsupportedArchitectureError) Error() string {
	return fmt.Sprintf("unsupported architecture %q: only x86 (amd64, i386) hosts are supported", e.Machine)
}

// ConfigurationIntegrityError reports a mismatch between the catalog and the
// support matrix. It always indicates a defect in the tool, not the host.
type ConfigurationIntegrityError struct {
	Detail string
}

func (e *ConfigurationIntegrityError) Error() string {
	return "configuration integrity: " + e.Detail
}

// NewConfigurationIntegrityError creates a ConfigurationIntegrityError with a formatted detail.
func NewConfigurationIntegrityError(format string, args ...interface{}) *ConfigurationIntegrityError {
	return &ConfigurationIntegrityError{Detail: fmt.Sprintf(format, args...)}
}

// RepositoryMissingError is returned when the project root has no .git directory.
type RepositoryMissingError struct {
	Root string
}

func (e *RepositoryMissingError) Error() string {
	return fmt.Sprintf("no git repository present at %s: the development environment must be "+
		"provisioned from a source checkout, not from a release tarball", e.Root)
}

// PolicyViolationError is returned when the plan guard rejects a plan.
type PolicyViolationError struct {
	Violations []string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("plan rejected by policy: %s", strings.Join(e.Violations, "; "))
}

// StepError wraps the failure of a single pipeline step.
type StepError struct {
	Step     string
	Stage    State
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("step %s failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
	}
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *StepError) Unwrap() error {
	return e.Err
}

// KindOf classifies err into an ErrorKind by inspecting the error chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}

	var (
		platformErr  *UnsupportedPlatformError
		archErr      *UnsupportedArchitectureError
		integrityErr *ConfigurationIntegrityError
		repoErr      *RepositoryMissingError
		policyErr    *PolicyViolationError
		commandErr   *runner.ExternalCommandError
		ioErr        *resources.IOError
		pathErr      *fs.PathError
	)

	switch {
	case errors.As(err, &platformErr):
		return ErrorKindUnsupportedPlatform
	case errors.As(err, &archErr):
		return ErrorKindUnsupportedArchitecture
	case errors.As(err, &integrityErr):
		return ErrorKindConfigurationIntegrity
	case errors.As(err, &repoErr):
		return ErrorKindRepositoryMissing
	case errors.As(err, &policyErr):
		return ErrorKindPolicyViolation
	case isCancellation(err):
		return ErrorKindCancelled
	case errors.As(err, &commandErr):
		return ErrorKindExternalCommand
	case errors.As(err, &ioErr), errors.As(err, &pathErr):
		return ErrorKindIO
	default:
		return ErrorKindUnknown
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
