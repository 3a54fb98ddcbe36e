package metrics

import (
	"strconv"
	"time"

	"mercator-hq/workbench/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks metrics related to request dispatch.
//
// Metrics:
//   - workbench_server_requests_total: request count by route, class, status
//   - workbench_server_request_duration_seconds: request duration histogram
//   - workbench_server_requests_in_flight: requests currently dispatched
//   - workbench_server_async_timeouts_total: connections completed by timeout
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	asyncTimeouts   *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of requests dispatched",
			},
			[]string{"route", "class", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"route", "class"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_in_flight",
				Help:      "Number of requests awaiting a response",
			},
		),

		asyncTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "async_timeouts_total",
				Help:      "Connections completed by the server after the handler timed out",
			},
			[]string{"route"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.inFlight,
		rm.asyncTimeouts,
	)

	return rm
}

// RecordRequest records metrics for a completed request.
func (rm *RequestMetrics) RecordRequest(route, class string, status int, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(route, class, strconv.Itoa(status)).Inc()
	rm.requestDuration.WithLabelValues(route, class).Observe(duration.Seconds())
}
