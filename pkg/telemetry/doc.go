// Package telemetry groups the workbench server's observability packages.
//
// # Components
//
//   - logging: slog setup with credential redaction and request context fields
//   - metrics: Prometheus collectors for requests, auth, proxying, sessions
//     and scheduled commands
//   - tracing: OpenTelemetry spans exported over OTLP/gRPC
//   - health: liveness and readiness checks
//
// # Usage
//
//	logger, err := logging.Install(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	if err != nil {
//		return err
//	}
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordProxy("rpc", "ok", time.Since(start))
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	ctx, span := tracer.Start(ctx, "workbench.request")
//	defer span.End()
//
// # Redaction
//
// Log attributes named like credentials are replaced, and string values are
// scanned for passwords in query strings, bearer tokens, the user-id cookie
// and the session shared-secret header.
package telemetry
