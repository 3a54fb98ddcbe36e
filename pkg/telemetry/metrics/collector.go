package metrics

import (
	"time"

	"mercator-hq/workbench/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric of the server and provides a single
// recording interface for all components.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics   *RequestMetrics
	authMetrics      *AuthMetrics
	proxyMetrics     *ProxyMetrics
	sessionMetrics   *SessionMetrics
	schedulerMetrics *SchedulerMetrics
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = append([]float64(nil), config.DefaultRequestDurationBuckets...)
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.authMetrics = NewAuthMetrics(cfg, registry)
	c.proxyMetrics = NewProxyMetrics(cfg, registry)
	c.sessionMetrics = NewSessionMetrics(cfg, registry)
	c.schedulerMetrics = NewSchedulerMetrics(cfg, registry)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordRequest records a completed request.
//
// Parameters:
//   - route: matched URI prefix ("default" for the catch-all)
//   - class: handler classification ("blocking", "async")
//   - status: HTTP status written to the client
//   - duration: time from dispatch to completion
func (c *Collector) RecordRequest(route, class string, status int, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordRequest(route, class, status, duration)
}

// RequestStarted increments the in-flight gauge. Pair with RequestFinished.
func (c *Collector) RequestStarted() {
	if !c.enabled() {
		return
	}
	c.requestMetrics.inFlight.Inc()
}

// RequestFinished decrements the in-flight gauge.
func (c *Collector) RequestFinished() {
	if !c.enabled() {
		return
	}
	c.requestMetrics.inFlight.Dec()
}

// RecordAsyncTimeout records a connection completed by the server because
// its handler did not respond in time.
func (c *Collector) RecordAsyncTimeout(route string) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.asyncTimeouts.WithLabelValues(route).Inc()
}

// RecordAuth records the outcome of a security wrapper check.
//
// Parameters:
//   - flavor: "http", "json_rpc", "upload"
//   - outcome: "authenticated", "anonymous", "unauthenticated", "unauthorized"
func (c *Collector) RecordAuth(flavor, outcome string) {
	if !c.enabled() {
		return
	}
	c.authMetrics.checks.WithLabelValues(flavor, outcome).Inc()
}

// RecordProxy records a round trip to a session back end.
//
// Parameters:
//   - kind: "rpc", "events", "content"
//   - outcome: "success", "error", "timeout", "unavailable"
func (c *Collector) RecordProxy(kind, outcome string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.proxyMetrics.RecordRoundTrip(kind, outcome, duration)
}

// RecordSessionLaunch records an attempt to start a session process.
func (c *Collector) RecordSessionLaunch(outcome string) {
	if !c.enabled() {
		return
	}
	c.sessionMetrics.launches.WithLabelValues(outcome).Inc()
}

// RecordChildReaped records an exited child process collected after SIGCHLD.
func (c *Collector) RecordChildReaped() {
	if !c.enabled() {
		return
	}
	c.sessionMetrics.reaped.Inc()
}

// SetActiveSessions sets the number of live session processes.
func (c *Collector) SetActiveSessions(n int) {
	if !c.enabled() {
		return
	}
	c.sessionMetrics.active.Set(float64(n))
}

// RecordScheduledCommand records one execution of a scheduled command.
func (c *Collector) RecordScheduledCommand(name string, err error, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.schedulerMetrics.RecordRun(name, err, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
