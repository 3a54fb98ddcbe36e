package handlers

import (
	"html/template"
	"net/http"
	"regexp"

	"mercator-hq/workbench/pkg/uri"
)

// BrowserUnsupportedPath is the page unsupported browsers are sent to.
const BrowserUnsupportedPath = "/browser-unsupported"

// Internet Explorer (MSIE or Trident) cannot run the client.
var unsupportedBrowser = regexp.MustCompile(`\bMSIE [0-9]+|\bTrident/[0-9]+`)

// BrowserSupported reports whether userAgent can run the client.
func BrowserSupported(userAgent string) bool {
	return !unsupportedBrowser.MatchString(userAgent)
}

// BrowserFilter redirects unsupported browsers to BrowserUnsupportedPath.
func BrowserFilter(req *http.Request, resp *uri.Response) bool {
	if BrowserSupported(req.UserAgent()) {
		return true
	}
	resp.Redirect(BrowserUnsupportedPath, http.StatusFound)
	return false
}

var browserPage = template.Must(template.New("browser").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Unsupported Browser</title></head>
<body>
<h1>Unsupported Browser</h1>
<p>This browser is not supported. Please use a current version of Firefox, Chrome, Safari or Edge.</p>
{{if .}}<p><small>{{.}}</small></p>{{end}}
</body>
</html>
`))

// BrowserUnsupported renders the unsupported-browser page.
var BrowserUnsupported = uri.BlockingHandlerFunc(func(req *http.Request, resp *uri.Response) {
	resp.Header().Set("Content-Type", "text/html; charset=utf-8")
	resp.WriteHeader(http.StatusOK)
	_ = browserPage.Execute(resp, req.UserAgent())
})
