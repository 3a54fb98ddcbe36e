package metrics

import (
	"time"

	"mercator-hq/workbench/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics tracks security wrapper outcomes.
type AuthMetrics struct {
	checks *prometheus.CounterVec
}

// NewAuthMetrics creates and registers auth metrics.
func NewAuthMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuthMetrics {
	am := &AuthMetrics{
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "auth_checks_total",
				Help:      "Security wrapper checks by handler flavor and outcome",
			},
			[]string{"flavor", "outcome"},
		),
	}
	registry.MustRegister(am.checks)
	return am
}

// ProxyMetrics tracks round trips to session back ends.
type ProxyMetrics struct {
	roundTrips *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewProxyMetrics creates and registers proxy metrics.
func NewProxyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProxyMetrics {
	pm := &ProxyMetrics{
		roundTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "proxy_requests_total",
				Help:      "Requests forwarded to session back ends",
			},
			[]string{"kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "proxy_duration_seconds",
				Help:      "Duration of session back-end round trips in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"kind"},
		),
	}
	registry.MustRegister(pm.roundTrips, pm.duration)
	return pm
}

// RecordRoundTrip records one forwarded request.
func (pm *ProxyMetrics) RecordRoundTrip(kind, outcome string, duration time.Duration) {
	pm.roundTrips.WithLabelValues(kind, outcome).Inc()
	pm.duration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SessionMetrics tracks session process lifecycle.
type SessionMetrics struct {
	launches *prometheus.CounterVec
	reaped   prometheus.Counter
	active   prometheus.Gauge
}

// NewSessionMetrics creates and registers session metrics.
func NewSessionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SessionMetrics {
	sm := &SessionMetrics{
		launches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "session_launches_total",
				Help:      "Session process launch attempts by outcome",
			},
			[]string{"outcome"},
		),
		reaped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "children_reaped_total",
				Help:      "Exited child processes collected",
			},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sessions_active",
				Help:      "Live session processes",
			},
		),
	}
	registry.MustRegister(sm.launches, sm.reaped, sm.active)
	return sm
}

// SchedulerMetrics tracks scheduled command executions.
type SchedulerMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewSchedulerMetrics creates and registers scheduler metrics.
func NewSchedulerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SchedulerMetrics {
	sm := &SchedulerMetrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "scheduled_command_runs_total",
				Help:      "Scheduled command executions by result",
			},
			[]string{"command", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "scheduled_command_duration_seconds",
				Help:      "Scheduled command execution time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}
	registry.MustRegister(sm.runs, sm.duration)
	return sm
}

// RecordRun records one command execution.
func (sm *SchedulerMetrics) RecordRun(name string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	sm.runs.WithLabelValues(name, result).Inc()
	sm.duration.WithLabelValues(name).Observe(duration.Seconds())
}
