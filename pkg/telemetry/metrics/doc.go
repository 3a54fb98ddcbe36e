// Package metrics provides Prometheus metrics collection for the workbench
// server.
//
// # Metrics Categories
//
//   - Request Metrics: request count, duration, in-flight count, and async
//     timeouts by route prefix and handler classification
//   - Auth Metrics: authentication and authorization outcomes by handler flavor
//   - Proxy Metrics: round trips to session back ends by request kind
//   - Session Metrics: session launches, reaped children, active sessions
//   - Scheduler Metrics: scheduled command runs and durations
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordRequest("/rpc", "async", 200, 12*time.Millisecond)
//	mux.Handle("/metrics", collector.Handler())
//
// A nil *Collector is valid and records nothing, so components can be
// constructed without metrics in tests.
package metrics
