// Package engine provides the core types and orchestration of the development
// environment provisioner.
//
// # Overview
//
// A run moves through a fixed sequence of states:
//
//  1. NotStarted - Nothing has been inspected yet
//  2. PlatformValidated - CPU architecture and distribution release are supported
//  3. RepositoriesConfigured - Package repositories are registered
//  4. PackagesInstalled - The resolved OS packages are installed
//  5. EnvironmentReady - Virtualenv, shell profile and node modules are set up
//  6. ResourcesInitialized - Directories, data files and secrets exist
//  7. ServicesRestarted - Services and databases are bootstrapped
//  8. Complete - Terminal success
//
// Any fatal failure moves the run to Failed, which is absorbing. No state is
// ever skipped or revisited.
//
// # Core Domain Types
//
//   - PlatformIdentity: vendor and codename, the key of every per-platform table
//   - RunContext: immutable modes and paths of one run
//   - Step: a named Action attached to a stage, with retry and fatality flags
//   - Plan: the concrete step sequence for one platform and mode combination
//   - ExecutionResult: the outcome of one step
//   - Report: the outcome of one run
//
// # Actions
//
// Action is a closed set of plain-data variants: CommandAction runs an
// external program, DirectoryAction, CopyAction, UnlinkAction and
// ProfileAction provision the filesystem. A plan can be printed or checked
// by a PlanGuard without executing anything.
//
// # Pipeline
//
// Pipeline runs the PlatformGate, asks the Planner for a plan, lets the
// optional PlanGuard reject it, then executes the stages one step at a time.
// Steps marked retryable are wrapped by RetryPolicy, which logs one warning
// per retry. Observers receive every transition and step result; the history
// store, metrics and tracing hook in through them.
//
// # Error Classification
//
// KindOf maps an error chain onto an ErrorKind:
//
//   - unsupported_platform, unsupported_architecture: rejected before any mutation
//   - repository_missing: the project root is not a source checkout
//   - configuration_integrity: a defect in the catalog or configuration
//   - policy_violation: the plan guard refused the plan
//   - external_command: a program exited non-zero or could not start
//   - io: a filesystem operation failed
//   - cancelled: the operator interrupted the run
package engine
