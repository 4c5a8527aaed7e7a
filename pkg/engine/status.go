package engine

import (
	"fmt"
)

// State is a state of the provisioning state machine.
type State string

const (
	// StateNotStarted is the initial state before the platform gate has run.
	StateNotStarted State = "not_started"

	// StatePlatformValidated indicates the host architecture and platform are supported.
	StatePlatformValidated State = "platform_validated"

	// StateRepositoriesConfigured indicates package repositories have been registered.
	StateRepositoriesConfigured State = "repositories_configured"

	// StatePackagesInstalled indicates the resolved OS packages are installed.
	StatePackagesInstalled State = "packages_installed"

	// StateEnvironmentReady indicates the language runtime environments are set up.
	StateEnvironmentReady State = "environment_ready"

	// StateResourcesInitialized indicates directories, data files and secrets exist.
	StateResourcesInitialized State = "resources_initialized"

	// StateServicesRestarted indicates services and databases have been bootstrapped.
	StateServicesRestarted State = "services_restarted"

	// StateComplete is the terminal success state.
	StateComplete State = "complete"

	// StateFailed is the absorbing failure state.
	StateFailed State = "failed"
)

// stages lists the step-bearing states in execution order.
var stages = []State{
	StateRepositoriesConfigured,
	StatePackagesInstalled,
	StateEnvironmentReady,
	StateResourcesInitialized,
	StateServicesRestarted,
}

// Stages returns the states whose entry actions are plan steps, in execution order.
func Stages() []State {
	out := make([]State, len(stages))
	copy(out, stages)
	return out
}

// IsTerminal returns true if no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// IsStage returns true if steps may be attached to the state.
func (s State) IsStage() bool {
	for _, st := range stages {
		if st == s {
			return true
		}
	}
	return false
}

// Validate checks if the state is valid.
func (s State) Validate() error {
	switch s {
	case StateNotStarted, StatePlatformValidated, StateRepositoriesConfigured,
		StatePackagesInstalled, StateEnvironmentReady, StateResourcesInitialized,
		StateServicesRestarted, StateComplete, StateFailed:
		return nil
	default:
		return fmt.Errorf("invalid state: %s", s)
	}
}

// stateMachine tracks the pipeline position and enforces the transition order.
type stateMachine struct {
	current State
	reason  string
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateNotStarted}
}

// advance moves to the next state. Only forward transitions along the fixed
// order are permitted; anything else is a programming error.
func (m *stateMachine) advance(to State) {
	if m.current.IsTerminal() {
		panic(fmt.Sprintf("engine: transition from terminal state %s to %s", m.current, to))
	}
	if next := m.next(); next != to {
		panic(fmt.Sprintf("engine: invalid transition %s -> %s (expected %s)", m.current, to, next))
	}
	m.current = to
}

// fail moves to StateFailed from any non-terminal state.
func (m *stateMachine) fail(reason string) {
	if m.current.IsTerminal() {
		panic(fmt.Sprintf("engine: cannot fail from terminal state %s", m.current))
	}
	m.current = StateFailed
	m.reason = reason
}

func (m *stateMachine) next() State {
	switch m.current {
	case StateNotStarted:
		return StatePlatformValidated
	case StatePlatformValidated:
		return stages[0]
	case StateServicesRestarted:
		return StateComplete
	}
	for i, st := range stages {
		if st == m.current && i+1 < len(stages) {
			return stages[i+1]
		}
	}
	return StateFailed
}
