package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"

	"mercator-hq/workbench/pkg/uri"
)

// DefaultIndex is the file served for directory requests.
const DefaultIndex = "index.html"

// Filter inspects a request before it is served. Returning false means the
// filter has written the response and the request stops there.
type Filter func(req *http.Request, resp *uri.Response) bool

// Chain returns a filter running filters in order until one rejects.
func Chain(filters ...Filter) Filter {
	return func(req *http.Request, resp *uri.Response) bool {
		for _, f := range filters {
			if f != nil && !f(req, resp) {
				return false
			}
		}
		return true
	}
}

// FileOption configures a FileHandler.
type FileOption func(*FileHandler)

// WithPrefix strips prefix from request paths before resolving them.
func WithPrefix(prefix string) FileOption {
	return func(h *FileHandler) {
		h.prefix = prefix
	}
}

// WithMainPageFilter runs filter before serving the application shell, the
// index of the root directory.
func WithMainPageFilter(filter Filter) FileOption {
	return func(h *FileHandler) {
		h.mainPage = filter
	}
}

// WithFileLogger sets the logger.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(h *FileHandler) {
		h.logger = logger
	}
}

// FileHandler serves files below a root directory. Paths are resolved
// through os.Root so no request can reach outside it, including through
// symlinks.
type FileHandler struct {
	root     string
	prefix   string
	mainPage Filter
	logger   *slog.Logger
}

// NewFileHandler returns a handler serving root.
func NewFileHandler(root string, opts ...FileOption) *FileHandler {
	h := &FileHandler{
		root:   root,
		logger: slog.Default().With("component", "handlers.files"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeBlocking implements uri.BlockingHandler.
func (h *FileHandler) ServeBlocking(req *http.Request, resp *uri.Response) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		resp.Header().Set("Allow", "GET, HEAD")
		resp.SetError(http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	name, ok := h.resolve(req.URL.Path)
	if !ok {
		resp.SetError(http.StatusNotFound, "Not found")
		return
	}

	root, err := os.OpenRoot(h.root)
	if err != nil {
		h.logger.ErrorContext(req.Context(), "failed to open document root", "root", h.root, "error", err)
		resp.SetError(http.StatusInternalServerError, "Internal server error")
		return
	}
	defer root.Close()

	if name == "." || strings.HasSuffix(name, "/") {
		name = path.Join(name, DefaultIndex)
	} else if fi, err := root.Stat(name); err == nil && fi.IsDir() {
		// Directories are addressed with a trailing slash so relative
		// links in their index resolve.
		resp.Redirect(req.URL.Path+"/", http.StatusMovedPermanently)
		return
	}

	if name == DefaultIndex && h.mainPage != nil && !h.mainPage(req, resp) {
		return
	}

	f, err := root.Open(name)
	if err != nil {
		h.fail(req, resp, name, err)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		h.fail(req, resp, name, err)
		return
	}
	if fi.IsDir() {
		resp.SetError(http.StatusNotFound, "Not found")
		return
	}

	if name == DefaultIndex {
		resp.Header().Set("Cache-Control", "no-cache, no-store")
	}
	http.ServeContent(resp, req, fi.Name(), fi.ModTime(), f)
}

// resolve maps a request path to a slash-separated name relative to the
// root. Any ".." segment, backslash or NUL rejects the request outright.
func (h *FileHandler) resolve(p string) (string, bool) {
	if h.prefix != "" {
		rest, ok := strings.CutPrefix(p, h.prefix)
		if !ok {
			return "", false
		}
		p = rest
	}
	if strings.ContainsAny(p, "\\\x00") {
		return "", false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", false
		}
	}

	dir := strings.HasSuffix(p, "/") || p == ""
	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name == "" {
		return ".", true
	}
	if dir {
		name += "/"
	}
	return name, true
}

func (h *FileHandler) fail(req *http.Request, resp *uri.Response, name string, err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		resp.SetError(http.StatusNotFound, "Not found")
	case errors.Is(err, fs.ErrPermission):
		resp.SetError(http.StatusForbidden, "Forbidden")
	default:
		// Escapes from the root surface here as well.
		h.logger.WarnContext(req.Context(), "failed to serve file", "name", name, "error", err)
		resp.SetError(http.StatusNotFound, "Not found")
	}
}
