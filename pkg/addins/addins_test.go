package addins

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/workbench/pkg/config"
	"mercator-hq/workbench/pkg/security/auth"
	"mercator-hq/workbench/pkg/telemetry/health"
	"mercator-hq/workbench/pkg/telemetry/metrics"
	"mercator-hq/workbench/pkg/uri"
)

type registryRouter struct {
	reg *uri.Registry
}

func (r registryRouter) AddRoute(route uri.Route) error { return r.reg.Add(route) }

func newHost(t *testing.T) (*Host, *uri.Registry) {
	t.Helper()
	cfg := config.Default()
	reg := uri.NewRegistry()
	return &Host{
		Router:    registryRouter{reg},
		Providers: auth.NewRegistry(),
		Health:    health.New(0),
		Metrics:   metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		Telemetry: cfg.Telemetry,
	}, reg
}

func get(t *testing.T, reg *uri.Registry, path string) *httptest.ResponseRecorder {
	t.Helper()
	route, err := reg.Match(path)
	if err != nil {
		t.Fatalf("Match(%s): %v", path, err)
	}
	rec := httptest.NewRecorder()
	route.Invoke(uri.NewConnection(rec, httptest.NewRequest(http.MethodGet, path, nil)))
	return rec
}

func TestRegistry_InitializeBuiltins(t *testing.T) {
	host, reg := newHost(t)
	host.Health.MarkReady()

	got, err := NewRegistry().Initialize([]string{HealthName, MetricsName}, host)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if len(got) != 2 || got[0].Name() != HealthName || got[1].Name() != MetricsName {
		t.Fatalf("initialized = %v", got)
	}

	if rec := get(t, reg, "/health/live"); rec.Code != http.StatusOK {
		t.Errorf("liveness = %d", rec.Code)
	}
	if rec := get(t, reg, "/health/ready"); rec.Code != http.StatusOK {
		t.Errorf("readiness = %d %s", rec.Code, rec.Body.String())
	}
	host.Metrics.RecordAuth("http", "authenticated")
	rec := get(t, reg, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "workbench_") {
		t.Errorf("metrics = %d %.200s", rec.Code, rec.Body.String())
	}
}

func TestRegistry_UnknownAddin(t *testing.T) {
	host, _ := newHost(t)
	_, err := NewRegistry().Initialize([]string{HealthName, "gremlin"}, host)
	if !errors.Is(err, ErrUnknownAddin) {
		t.Errorf("err = %v, want ErrUnknownAddin", err)
	}
}

type providerAddin struct{}

func (providerAddin) Name() string { return "sso" }

func (providerAddin) Initialize(host *Host) error {
	return host.Providers.Register(ssoProvider{})
}

type ssoProvider struct{}

func (ssoProvider) Name() string      { return "sso" }
func (ssoProvider) SignInURL() string { return "/sso/login" }

func TestRegistry_CustomAddinRegistersProvider(t *testing.T) {
	host, _ := newHost(t)
	r := NewRegistry()
	if err := r.Register("sso", func() Addin { return providerAddin{} }); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("sso", func() Addin { return providerAddin{} }); !errors.Is(err, ErrDuplicateAddin) {
		t.Errorf("second Register = %v", err)
	}
	if _, err := r.Initialize([]string{"sso"}, host); err != nil {
		t.Fatal(err)
	}
	if !host.Providers.IsRegistered() || host.Providers.SignInURL() != "/sso/login" {
		t.Error("provider from add-in not registered")
	}
	if want := "health,metrics,sso"; strings.Join(r.Names(), ",") != want {
		t.Errorf("Names = %v", r.Names())
	}
}

func TestRegistry_InitializeFailureStops(t *testing.T) {
	host, reg := newHost(t)
	// A route at the liveness path makes the health add-in fail.
	reg.Add(uri.NewBlockingRoute("/health/live", uri.BlockingHandlerFunc(func(*http.Request, *uri.Response) {})))

	got, err := NewRegistry().Initialize([]string{MetricsName, HealthName}, host)
	if !errors.Is(err, uri.ErrDuplicatePrefix) {
		t.Fatalf("err = %v, want ErrDuplicatePrefix", err)
	}
	if len(got) != 1 {
		t.Errorf("initialized %d add-ins before failure, want 1", len(got))
	}
}

func TestMetricsAddin_Disabled(t *testing.T) {
	host, reg := newHost(t)
	host.Telemetry.Metrics.Enabled = false
	if _, err := NewRegistry().Initialize([]string{MetricsName}, host); err != nil {
		t.Fatal(err)
	}
	if len(reg.Routes()) != 0 {
		t.Errorf("routes = %v, want none", reg.Routes())
	}
}
