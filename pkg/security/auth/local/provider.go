package local

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"mercator-hq/workbench/pkg/security/auth"
	"mercator-hq/workbench/pkg/uri"
)

// Route prefixes served by the provider.
const (
	SignInPath   = "/auth-sign-in"
	DoSignInPath = "/auth-do-sign-in"
	SignOutPath  = "/auth-sign-out"
)

// ProviderName identifies the provider in logs.
const ProviderName = "local"

const maxFormBytes = 64 << 10

var signInPage = template.Must(template.New("sign-in").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Sign In</title></head>
<body>
<form method="POST" action="{{.Action}}">
{{if .Failed}}<p class="error">Incorrect or invalid username/password</p>{{end}}
<label>Username <input type="text" name="username" autofocus></label>
<label>Password <input type="password" name="password"></label>
<label><input type="checkbox" name="staySignedIn" value="1"> Stay signed in</label>
<input type="hidden" name="appUri" value="{{.AppURI}}">
<button type="submit">Sign In</button>
</form>
</body>
</html>
`))

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// Provider authenticates users against a users file.
type Provider struct {
	guard  *auth.Guard
	users  *UserStore
	logger *slog.Logger

	mu      sync.Mutex
	watcher *FileWatcher
}

// New returns a provider validating credentials against users and issuing
// identities through guard.
func New(guard *auth.Guard, users *UserStore, opts ...Option) *Provider {
	p := &Provider{
		guard:  guard,
		users:  users,
		logger: slog.Default().With("component", "auth.local"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements auth.Provider.
func (p *Provider) Name() string { return ProviderName }

// SignInURL implements auth.Provider.
func (p *Provider) SignInURL() string { return SignInPath }

// Routes returns the unsecured sign-in routes.
func (p *Provider) Routes() []uri.Route {
	return []uri.Route{
		uri.NewBlockingRoute(SignInPath, uri.BlockingHandlerFunc(p.serveSignIn)),
		uri.NewBlockingRoute(DoSignInPath, uri.BlockingHandlerFunc(p.serveDoSignIn)),
		uri.NewBlockingRoute(SignOutPath, uri.BlockingHandlerFunc(p.serveSignOut)),
	}
}

// Watch reloads the users file in the background whenever it changes, until
// ctx is cancelled or Close is called.
func (p *Provider) Watch(ctx context.Context) error {
	w, err := NewFileWatcher(p.users.Path(), DefaultDebounceInterval, p.logger)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.watcher != nil {
		p.mu.Unlock()
		w.Stop()
		return ErrWatcherRunning
	}
	p.watcher = w
	p.mu.Unlock()

	go func() {
		if err := w.Watch(ctx, p.users.Reload); err != nil {
			p.logger.Error("users file watcher exited", "error", err)
		}
	}()
	return nil
}

// Close stops the users file watcher, if any.
func (p *Provider) Close() error {
	p.mu.Lock()
	w := p.watcher
	p.watcher = nil
	p.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Stop()
}

func (p *Provider) serveSignIn(req *http.Request, resp *uri.Response) {
	resp.Header().Set("Content-Type", "text/html; charset=utf-8")
	resp.Header().Set("Cache-Control", "no-store")
	data := struct {
		Action string
		AppURI string
		Failed bool
	}{
		Action: DoSignInPath,
		AppURI: safeAppURI(req.URL.Query().Get("appUri")),
		Failed: req.URL.Query().Get("error") != "",
	}
	if err := signInPage.Execute(resp, data); err != nil {
		p.logger.Error("failed to render sign-in page", "error", err)
		resp.SetError(http.StatusInternalServerError, "Internal Server Error")
	}
}

func (p *Provider) serveDoSignIn(req *http.Request, resp *uri.Response) {
	if req.Method != http.MethodPost {
		resp.Header().Set("Allow", http.MethodPost)
		resp.SetError(http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	req.Body = http.MaxBytesReader(nil, req.Body, maxFormBytes)
	if err := req.ParseForm(); err != nil {
		resp.SetError(http.StatusBadRequest, "Bad Request")
		return
	}

	user := strings.TrimSpace(req.PostForm.Get("username"))
	password := req.PostForm.Get("password")
	persist := req.PostForm.Get("staySignedIn") != ""
	appURI := safeAppURI(req.PostForm.Get("appUri"))

	if err := p.users.Verify(user, password); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ErrUnknownUser) || errors.Is(err, ErrBadPassword) {
			level = slog.LevelInfo
		}
		p.logger.Log(req.Context(), level, "sign-in failed", "user", user, "error", err)
		p.redirectFailed(resp, appURI)
		return
	}
	if err := p.guard.Authorize(req.Context(), user); err != nil {
		p.logger.WarnContext(req.Context(), "sign-in not authorized", "user", user, "error", err)
		p.redirectFailed(resp, appURI)
		return
	}
	if err := p.guard.SignIn(resp, user, persist); err != nil {
		p.logger.ErrorContext(req.Context(), "failed to issue identity", "user", user, "error", err)
		resp.SetError(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	resp.Redirect(appURI, http.StatusFound)
}

func (p *Provider) serveSignOut(req *http.Request, resp *uri.Response) {
	p.guard.SignOut(resp)
	resp.Redirect(SignInPath, http.StatusFound)
}

func (p *Provider) redirectFailed(resp *uri.Response, appURI string) {
	q := url.Values{"error": {"1"}, "appUri": {appURI}}
	resp.Redirect(SignInPath+"?"+q.Encode(), http.StatusFound)
}

// safeAppURI accepts only local absolute paths, falling back to "/".
func safeAppURI(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return raw
}
