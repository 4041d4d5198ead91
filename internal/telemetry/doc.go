// Package telemetry wires OpenTelemetry tracing and metrics for apigov.
//
// When enabled, New installs OTLP/HTTP trace and metric exporters as the otel
// globals, so the package-level tracers in governance, http and mcp start
// exporting without further plumbing:
//
//	tel, err := telemetry.New(ctx, cfg.Telemetry, version, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Configuration:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4318"
//	  insecure: true
//	  sample_rate: 1.0
//	  metric_interval: 15s
//
// Exporter setup failures leave the instance degraded rather than failing
// startup. Tests use NewTestTelemetry for in-memory span and metric capture.
package telemetry
