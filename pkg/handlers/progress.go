package handlers

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/workbench/pkg/uri"
)

var progressPage = template.Must(template.New("progress").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
{{if .Next}}<p><a href="{{.Next}}">Continue</a></p>{{end}}
</body>
</html>
`))

type progressData struct {
	Title   string
	Message string
	Next    string
}

// ProgressHandler renders the static progress page. The optional "title",
// "message" and "next" query parameters fill it in; "next" must be a local
// path and becomes the continue link.
type ProgressHandler struct {
	logger *slog.Logger
}

// NewProgressHandler returns a ProgressHandler.
func NewProgressHandler(logger *slog.Logger) *ProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressHandler{logger: logger.With("component", "handlers.progress")}
}

// ServeBlocking implements uri.BlockingHandler.
func (h *ProgressHandler) ServeBlocking(req *http.Request, resp *uri.Response) {
	q := req.URL.Query()
	data := progressData{
		Title:   q.Get("title"),
		Message: q.Get("message"),
		Next:    localPath(q.Get("next")),
	}
	if data.Title == "" {
		data.Title = "Workbench"
	}
	if data.Message == "" {
		data.Message = "Please wait..."
	}

	var buf bytes.Buffer
	if err := progressPage.Execute(&buf, data); err != nil {
		h.logger.ErrorContext(req.Context(), "failed to render progress page", "error", err)
		resp.SetError(http.StatusInternalServerError, "Internal server error")
		return
	}
	resp.Header().Set("Content-Type", "text/html; charset=utf-8")
	resp.Header().Set("Cache-Control", "no-cache, no-store")
	resp.WriteHeader(http.StatusOK)
	_, _ = resp.Write(buf.Bytes())
}

func localPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return ""
	}
	return p
}
