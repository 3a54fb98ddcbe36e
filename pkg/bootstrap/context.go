package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/workbench/pkg/addins"
	"mercator-hq/workbench/pkg/clientlog"
	"mercator-hq/workbench/pkg/config"
	"mercator-hq/workbench/pkg/options"
	"mercator-hq/workbench/pkg/proxy"
	"mercator-hq/workbench/pkg/renv"
	"mercator-hq/workbench/pkg/security/auth"
	"mercator-hq/workbench/pkg/security/auth/local"
	"mercator-hq/workbench/pkg/security/cookie"
	"mercator-hq/workbench/pkg/server"
	"mercator-hq/workbench/pkg/session"
	"mercator-hq/workbench/pkg/system"
	"mercator-hq/workbench/pkg/telemetry/health"
	"mercator-hq/workbench/pkg/telemetry/metrics"
	"mercator-hq/workbench/pkg/telemetry/tracing"
)

// Context carries every collaborator created during startup. Fields are
// filled in step order; a nil field means its step has not run.
type Context struct {
	Options *options.Options
	Config  *config.Config
	Logger  *slog.Logger

	Metrics *metrics.Collector
	Health  *health.Checker
	Tracer  *tracing.Tracer

	REnv      *renv.Environment
	Codec     *cookie.Codec
	Sessions  *session.Manager
	Proxy     *proxy.Proxy
	Server    *server.Server
	Providers *auth.Registry
	Guard     *auth.Guard
	LocalAuth *local.Provider
	ClientLog clientlog.Store
	Addins    []addins.Addin

	platform Platform
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer

	privileges atomic.Pointer[system.Privileges]

	// background is cancelled at shutdown; it scopes watchers.
	background context.Context
	cancel     context.CancelFunc

	shutdownOnce sync.Once
}

// withPrivileges runs fn with root restored when privileges were dropped.
func (c *Context) withPrivileges(fn func() error) error {
	if p := c.privileges.Load(); p != nil {
		return p.WithRestoredPriv(fn)
	}
	return fn()
}

// cleanup is the termination hook run once before the signal is re-raised.
func (c *Context) cleanup(sig os.Signal) {
	c.Logger.Info("termination signal received, shutting down", "signal", sig.String())
	c.shutdown()
}

// shutdown releases everything startup created, in reverse dependency
// order. It runs at most once.
func (c *Context) shutdown() {
	c.shutdownOnce.Do(func() {
		timeout := config.DefaultShutdownTimeout
		if c.Config != nil && c.Config.Server.ShutdownTimeout > 0 {
			timeout = c.Config.Server.ShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if c.cancel != nil {
			c.cancel()
		}
		if c.Server != nil {
			if err := c.Server.Stop(ctx); err != nil {
				c.Logger.Warn("server did not stop cleanly", "error", err)
			}
		}
		if c.Proxy != nil {
			if err := c.Proxy.Wait(ctx); err != nil {
				c.Logger.Warn("proxied requests still in flight", "error", err)
			}
		}
		if c.Sessions != nil {
			if err := c.Sessions.Shutdown(ctx); err != nil {
				c.Logger.Warn("sessions did not exit cleanly", "error", err)
			}
		}
		if c.LocalAuth != nil {
			if err := c.LocalAuth.Close(); err != nil {
				c.Logger.Warn("failed to stop users file watcher", "error", err)
			}
		}
		if c.ClientLog != nil {
			if err := c.ClientLog.Close(); err != nil {
				c.Logger.Warn("failed to close client log", "error", err)
			}
		}
		if c.Tracer != nil {
			flush, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelFlush()
			if err := c.Tracer.Shutdown(flush); err != nil {
				c.Logger.Warn("failed to flush traces", "error", err)
			}
		}
	})
}
