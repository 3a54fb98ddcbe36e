package addins

import (
	"errors"

	"mercator-hq/workbench/pkg/uri"
)

// Built-in add-in names.
const (
	HealthName  = "health"
	MetricsName = "metrics"
)

type healthAddin struct{}

func (healthAddin) Name() string { return HealthName }

func (healthAddin) Initialize(host *Host) error {
	if host.Health == nil {
		return errors.New("health checker not configured")
	}
	cfg := host.Telemetry.Health
	routes := []uri.Route{
		uri.NewBlockingRoute(cfg.LivenessPath, uri.FromHTTP(host.Health.LivenessHandler())),
		uri.NewBlockingRoute(cfg.ReadinessPath, uri.FromHTTP(host.Health.ReadinessHandler())),
	}
	for _, r := range routes {
		if err := host.Router.AddRoute(r); err != nil {
			return err
		}
	}
	return nil
}

type metricsAddin struct{}

func (metricsAddin) Name() string { return MetricsName }

func (metricsAddin) Initialize(host *Host) error {
	if !host.Telemetry.Metrics.Enabled || host.Metrics == nil {
		if host.Logger != nil {
			host.Logger.Info("metrics disabled, not mounting endpoint")
		}
		return nil
	}
	return host.Router.AddRoute(uri.NewBlockingRoute(host.Telemetry.Metrics.Path, uri.FromHTTP(host.Metrics.Handler())))
}
