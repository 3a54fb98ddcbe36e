// Package offline provides the reduced handler set served when the server
// is started in offline mode: every request receives a 503 maintenance page
// except the unsupported-browser page.
package offline

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/workbench/pkg/handlers"
	"mercator-hq/workbench/pkg/uri"
)

// RetryAfter is advertised to clients of the offline page.
const RetryAfter = 5 * time.Minute

// Router is the part of the server the offline set registers into.
type Router interface {
	AddRoute(route uri.Route) error
	SetBlockingDefaultHandler(h uri.BlockingHandler) error
}

var page = template.Must(template.New("offline").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Workbench Offline</title></head>
<body>
<h1>Workbench is offline</h1>
<p>The server is temporarily offline for maintenance. Please try again later.</p>
</body>
</html>
`))

// Page renders the offline page with 503.
var Page = uri.BlockingHandlerFunc(func(req *http.Request, resp *uri.Response) {
	resp.Header().Set("Retry-After", strconv.Itoa(int(RetryAfter.Seconds())))
	resp.Header().Set("Cache-Control", "no-cache, no-store")
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		resp.Header().Set("Content-Type", "text/html; charset=utf-8")
		resp.WriteHeader(http.StatusServiceUnavailable)
		_ = page.Execute(resp, nil)
		return
	}
	resp.SetError(http.StatusServiceUnavailable, "Service unavailable")
	resp.Header().Set("Retry-After", strconv.Itoa(int(RetryAfter.Seconds())))
})

// Register installs the offline handler set.
func Register(r Router) error {
	if err := r.AddRoute(uri.NewBlockingRoute(handlers.BrowserUnsupportedPath, handlers.BrowserUnsupported)); err != nil {
		return err
	}
	return r.SetBlockingDefaultHandler(Page)
}
