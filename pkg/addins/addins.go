// Package addins registers optional handler bundles at startup. Add-ins are
// selected by name in configuration and installed after the core routes.
package addins

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"mercator-hq/workbench/pkg/config"
	"mercator-hq/workbench/pkg/security/auth"
	"mercator-hq/workbench/pkg/telemetry/health"
	"mercator-hq/workbench/pkg/telemetry/metrics"
	"mercator-hq/workbench/pkg/uri"
)

var (
	// ErrUnknownAddin is returned for a configured name with no factory.
	ErrUnknownAddin = errors.New("unknown add-in")

	// ErrDuplicateAddin is returned when a name is registered twice.
	ErrDuplicateAddin = errors.New("add-in already registered")
)

// Router is the part of the server add-ins register routes into.
type Router interface {
	AddRoute(route uri.Route) error
}

// Host is what an add-in may extend. Providers lets an add-in install an
// authentication provider, which suppresses the built-in one.
type Host struct {
	Router    Router
	Providers *auth.Registry
	Health    *health.Checker
	Metrics   *metrics.Collector
	Telemetry config.TelemetryConfig
	Logger    *slog.Logger
}

// Addin is an optional handler bundle.
type Addin interface {
	Name() string
	Initialize(host *Host) error
}

// Factory creates an add-in.
type Factory func() Addin

// Registry maps add-in names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in add-ins.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[HealthName] = func() Addin { return healthAddin{} }
	r.factories[MetricsName] = func() Addin { return metricsAddin{} }
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAddin, name)
	}
	r.factories[name] = f
	return nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Initialize creates and initializes the enabled add-ins in order. The
// first failure stops initialization.
func (r *Registry) Initialize(enabled []string, host *Host) ([]Addin, error) {
	logger := host.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var out []Addin
	for _, name := range enabled {
		r.mu.RLock()
		f, ok := r.factories[name]
		r.mu.RUnlock()
		if !ok {
			return out, fmt.Errorf("%w: %q (available: %v)", ErrUnknownAddin, name, r.Names())
		}

		a := f()
		if err := a.Initialize(host); err != nil {
			return out, fmt.Errorf("failed to initialize add-in %q: %w", name, err)
		}
		logger.Info("add-in initialized", "addin", name)
		out = append(out, a)
	}
	return out, nil
}
