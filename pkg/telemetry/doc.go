// Package telemetry provides the observability stack of the provisioning
// tool: structured logging with zerolog, step and run metrics written to a
// Prometheus textfile, and OpenTelemetry tracing of runs, stages and steps.
//
// Initialize telemetry once per process:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Metrics implements engine.Observer and is registered on the pipeline with
// engine.WithObservers(tel.Observers()...). After a run that got past
// platform validation, WriteTextfile writes the registry to
// cfg.Metrics.Textfile in the format read by node_exporter's textfile
// collector. Shutdown never touches the textfile, so inspection commands
// leave the last run's metrics in place.
//
// Tracing defaults to the "none" exporter. With "stdout" or "otlp" the
// provider is installed globally, so the spans the pipeline opens through
// otel.Tracer are exported.
package telemetry
