// Package config loads the operator configuration of the provisioner and
// turns it, together with the command-line mode flags, into an
// engine.RunContext.
//
// # Overview
//
// Configuration is read from tools/provision.yaml under the project root, or
// from the file named with --config. A missing default file is not an error:
// every setting has a default. Relative paths in the file resolve against the
// project root.
//
// # Validation
//
// The decoded Config is validated with go-playground/validator struct tags.
// Any failure, including malformed YAML, is reported as an
// engine.ConfigurationIntegrityError before the pipeline starts.
//
// # Usage Example
//
//	cfg, err := config.Load(root, "")
//	if err != nil {
//	    return err
//	}
//	rc, err := config.Build(cfg, config.Flags{CI: true})
package config
