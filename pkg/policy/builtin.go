package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		elevationAllowlistPolicy(),
		shellStringPolicy(),
		stepNamingPolicy(),
	}
}

// elevationAllowlistPolicy restricts which programs run under sudo.
func elevationAllowlistPolicy() Policy {
	return Policy{
		Name:        "elevation-allowlist",
		Description: "Elevated commands must run an allow-listed program or a project tool",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package provision.guard.elevation

import rego.v1

allowed(program) if program in data.provision.config.elevated_programs

allowed(program) if {
	some prefix in data.provision.config.elevated_prefixes
	startswith(program, prefix)
	not ".." in split(program, "/")
}

deny contains violation if {
	some step in input.steps
	step.elevated
	count(step.argv) > 0
	program := step.argv[0]
	not allowed(program)
	violation := {
		"message": sprintf("step %s runs %s with elevated privileges, which is not allow-listed", [step.name, program]),
		"severity": "error",
		"step": step.name,
	}
}

deny contains violation if {
	some step in input.steps
	step.elevated
	count(step.argv) == 0
	violation := {
		"message": sprintf("step %s is elevated but runs no command", [step.name]),
		"severity": "error",
		"step": step.name,
	}
}
`,
	}
}

// shellStringPolicy rejects commands that hand a string to a shell.
func shellStringPolicy() Policy {
	return Policy{
		Name:        "no-shell-strings",
		Description: "Commands are argument vectors; shells invoked with -c are rejected",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package provision.guard.shell

import rego.v1

shells := {"sh", "bash", "dash", "zsh"}

program_name(path) := name if {
	parts := split(path, "/")
	name := parts[count(parts) - 1]
}

deny contains violation if {
	some step in input.steps
	count(step.argv) > 0
	program_name(step.argv[0]) in shells
	"-c" in step.argv
	violation := {
		"message": sprintf("step %s passes a command string to %s", [step.name, step.argv[0]]),
		"severity": "error",
		"step": step.name,
	}
}
`,
	}
}

// stepNamingPolicy requires unique, non-empty step names.
func stepNamingPolicy() Policy {
	return Policy{
		Name:        "step-naming",
		Description: "Step names must be non-empty and unique within a plan",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package provision.guard.naming

import rego.v1

deny contains violation if {
	some i, step in input.steps
	step.name == ""
	violation := {
		"message": sprintf("step #%d has an empty name", [i]),
		"severity": "error",
	}
}

deny contains violation if {
	some i, a in input.steps
	some j, b in input.steps
	i < j
	a.name != ""
	a.name == b.name
	violation := {
		"message": sprintf("step name %s is used more than once", [a.name]),
		"severity": "error",
		"step": a.name,
	}
}

deny contains violation if {
	some step in input.steps
	step.name != ""
	not regex.match("^[a-z0-9][a-z0-9_-]*$", step.name)
	violation := {
		"message": sprintf("step name %s must be lowercase letters, digits, hyphens or underscores", [step.name]),
		"severity": "warning",
		"step": step.name,
	}
}
`,
	}
}
