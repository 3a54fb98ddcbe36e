// Package tracing provides OpenTelemetry distributed tracing for the
// workbench server.
//
// Each dispatched request gets a server span named after its matched route
// prefix. Proxied requests carry the W3C trace context to the session back
// end so that back-end spans join the same trace:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// Spans are exported over OTLP/gRPC. When tracing is disabled the tracer is
// a no-op and adds negligible overhead.
//
// # Sampling Strategies
//
//   - always: sample all traces
//   - never: sample no traces
//   - ratio: sample a fraction of traces by trace ID
//
// Every strategy is wrapped in ParentBased, so an incoming sampled
// traceparent is always honored.
package tracing
