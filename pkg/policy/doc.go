// Package policy guards a provisioning plan with Rego policies before any
// step executes.
//
// The built-in policies restrict which programs may run under the privilege
// prefix, reject commands that hand a string to a shell, and require unique
// step names. Operators may add .rego files; each must define a "deny" set
// whose members are strings or objects with "message", "severity" and "step".
//
// Policies read the plan as input and the allow-lists as data.provision.config:
//
//	input.steps[_].name        step name
//	input.steps[_].argv        command argument vector (empty for in-process actions)
//	input.steps[_].elevated    whether the command runs under sudo
//	input.modes.ci             run mode flags
package policy
