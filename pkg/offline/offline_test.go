package offline

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/workbench/pkg/handlers"
	"mercator-hq/workbench/pkg/uri"
)

type registryRouter struct {
	reg *uri.Registry
}

func (r registryRouter) AddRoute(route uri.Route) error { return r.reg.Add(route) }

func (r registryRouter) SetBlockingDefaultHandler(h uri.BlockingHandler) error {
	return r.reg.SetDefault(uri.NewBlockingRoute("", h))
}

func dispatch(t *testing.T, reg *uri.Registry, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	route, err := reg.Match(path)
	if err != nil {
		t.Fatalf("Match(%s): %v", path, err)
	}
	rec := httptest.NewRecorder()
	route.Invoke(uri.NewConnection(rec, httptest.NewRequest(method, path, nil)))
	return rec
}

func TestRegister(t *testing.T) {
	reg := uri.NewRegistry()
	if err := Register(registryRouter{reg}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{http.MethodGet, "/", http.StatusServiceUnavailable, "offline"},
		{http.MethodGet, "/rpc/console_input", http.StatusServiceUnavailable, "offline"},
		{http.MethodPost, "/rpc/console_input", http.StatusServiceUnavailable, "Service unavailable"},
		{http.MethodGet, handlers.BrowserUnsupportedPath, http.StatusOK, "Unsupported Browser"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := dispatch(t, reg, tt.method, tt.path)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q", rec.Body.String())
			}
			if tt.wantCode == http.StatusServiceUnavailable && rec.Header().Get("Retry-After") != "300" {
				t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
			}
		})
	}
}
