package bootstrap

import (
	"context"
	"fmt"

	"mercator-hq/workbench/pkg/addins"
	"mercator-hq/workbench/pkg/clientlog/retention"
	"mercator-hq/workbench/pkg/clientlog/storage"
	"mercator-hq/workbench/pkg/handlers"
	"mercator-hq/workbench/pkg/offline"
	"mercator-hq/workbench/pkg/proxy"
	"mercator-hq/workbench/pkg/security/auth"
	"mercator-hq/workbench/pkg/security/auth/local"
	"mercator-hq/workbench/pkg/uri"
)

// Route prefixes forwarded to the user's session.
var (
	rpcPrefixes = []string{"/rpc", "/events"}

	contentPrefixes = []string{
		"/graphics", "/export", "/source", "/content", "/diff",
		"/file_show", "/view_pdf", "/agreement", "/presentation",
	}

	// optionalAuthPrefixes are reachable outside an authenticated workbench,
	// for example from a help viewer window.
	optionalAuthPrefixes = []string{"/help", "/files", "/custom", "/session", "/html_preview"}
)

const (
	uploadPrefix    = "/upload"
	docsPrefix      = "/docs"
	logPrefix       = "/log"
	progressPrefix  = "/progress"
	templatesPrefix = "/templates"
)

// registerRoutes fills the route registry. Offline mode installs only the
// offline page set.
func (s *Sequencer) registerRoutes(c *Context) error {
	if c.Config.Server.Offline {
		if err := offline.Register(c.Server); err != nil {
			return fatal("routes", ExitUnexpected, err)
		}
		c.Logger.Info("offline mode, serving offline page only")
		return nil
	}

	if err := s.openClientLog(c); err != nil {
		return fatal("client log", ExitUnexpected, err)
	}

	c.Guard = auth.NewGuard(c.Codec, c.Providers,
		auth.WithAuthorizer(auth.NewAuthorizer(c.Config.Auth.AllowedUsers)),
		auth.WithLifetimes(c.Config.Auth.CookieLifetime, c.Config.Auth.PersistLifetime),
		auth.WithLogger(c.Logger.With("component", "auth")),
		auth.WithRecorder(c.Metrics),
	)

	if err := s.addCoreRoutes(c); err != nil {
		return fatal("routes", ExitUnexpected, err)
	}

	enabled, err := s.addins.Initialize(c.Config.Addins.Enabled, &addins.Host{
		Router:    c.Server,
		Providers: c.Providers,
		Health:    c.Health,
		Metrics:   c.Metrics,
		Telemetry: c.Config.Telemetry,
		Logger:    c.Logger.With("component", "addins"),
	})
	if err != nil {
		return fatal("addins", ExitAddins, err)
	}
	c.Addins = enabled

	if c.Providers.IsRegistered() {
		c.Logger.Info("authentication provider registered by add-in, skipping built-in",
			"provider", c.Providers.Provider().Name(),
		)
		return nil
	}
	if err := s.initLocalAuth(c); err != nil {
		return fatal("authentication", ExitAuth, err)
	}
	return nil
}

func (s *Sequencer) addCoreRoutes(c *Context) error {
	g, p := c.Guard, c.Proxy
	routes := make([]uri.Route, 0, 32)

	for _, prefix := range rpcPrefixes {
		kind := proxy.KindRPC
		if prefix == "/events" {
			kind = proxy.KindEvents
		}
		routes = append(routes, uri.NewAsyncRoute(prefix, g.SecureAsyncJSONRPCHandler(p.Handler(kind))).
			WithSecurity(uri.Secure))
	}
	for _, prefix := range contentPrefixes {
		routes = append(routes, uri.NewAsyncRoute(prefix, g.SecureAsyncHTTPHandler(p.Handler(proxy.KindContent), false)).
			WithSecurity(uri.Secure))
	}
	routes = append(routes, uri.NewAsyncRoute(uploadPrefix, g.SecureAsyncUploadHandler(p.Handler(proxy.KindContent))).
		WithSecurity(uri.Secure))
	for _, prefix := range optionalAuthPrefixes {
		routes = append(routes, uri.NewAsyncRoute(prefix, g.SecureAsyncHTTPHandler(p.Handler(proxy.KindContent), true)).
			WithSecurity(uri.SecureWithOptionalAuth))
	}

	docs := handlers.NewFileHandler(c.Config.Server.DocsRoot,
		handlers.WithPrefix(docsPrefix),
		handlers.WithFileLogger(c.Logger.With("component", "docs")),
	)
	routes = append(routes,
		uri.NewAsyncRoute(docsPrefix, g.SecureAsyncHTTPHandler(auth.IgnoreIdentity(uri.Adapt(docs)), true)).
			WithSecurity(uri.SecureWithOptionalAuth),
		uri.NewBlockingRoute(logPrefix, g.SecureJSONRPCHandler(handlers.NewLogHandler(c.ClientLog, c.Logger.With("component", "client")))).
			WithSecurity(uri.Secure),
		uri.NewBlockingRoute(progressPrefix, g.SecureHTTPHandler(handlers.NewProgressHandler(c.Logger))).
			WithSecurity(uri.Secure),
		uri.NewBlockingRoute(handlers.BrowserUnsupportedPath, handlers.BrowserUnsupported),
		uri.NewBlockingRoute(templatesPrefix, handlers.NotFound),
	)

	for _, r := range routes {
		if err := c.Server.AddRoute(r); err != nil {
			return err
		}
	}

	shell := handlers.NewFileHandler(c.Config.Server.WWWRoot,
		handlers.WithMainPageFilter(handlers.Chain(handlers.BrowserFilter, g.MainPageFilter)),
		handlers.WithFileLogger(c.Logger.With("component", "www")),
	)
	return c.Server.SetBlockingDefaultHandler(shell)
}

// openClientLog opens the store behind /log. A disabled client log still
// gets a small in-memory store so the route keeps answering.
func (s *Sequencer) openClientLog(c *Context) error {
	cfg := c.Config.ClientLog
	if !cfg.Enabled {
		cfg.Backend = "memory"
	}
	store, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	c.ClientLog = store

	c.Health.RegisterCheck("client_log", func(ctx context.Context) error {
		_, err := store.Count(ctx)
		return err
	})

	if cfg.Enabled && cfg.Retention > 0 {
		pruner := retention.NewPruner(store, cfg.Retention, cfg.PruneInterval, c.Logger)
		if err := c.Server.AddScheduledCommand(pruner.Command()); err != nil {
			return fmt.Errorf("failed to schedule client log pruning: %w", err)
		}
	}
	return nil
}

// initLocalAuth installs the password file provider.
func (s *Sequencer) initLocalAuth(c *Context) error {
	users, err := local.LoadUsers(c.Config.Auth.UsersFile)
	if err != nil {
		return err
	}
	provider := local.New(c.Guard, users, local.WithLogger(c.Logger.With("component", "auth.local")))
	if err := c.Providers.Register(provider); err != nil {
		return err
	}
	for _, r := range provider.Routes() {
		if err := c.Server.AddRoute(r); err != nil {
			return err
		}
	}
	if c.Config.Auth.WatchUsersFile {
		if err := provider.Watch(c.background); err != nil {
			return fmt.Errorf("failed to watch users file: %w", err)
		}
	}
	c.LocalAuth = provider
	c.Logger.Info("built-in authentication enabled",
		"provider", provider.Name(),
		"users", users.Len(),
	)
	return nil
}
