package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"mercator-hq/workbench/pkg/config"
	"mercator-hq/workbench/pkg/scheduler"
	"mercator-hq/workbench/pkg/server/middleware"
	"mercator-hq/workbench/pkg/telemetry/metrics"
	"mercator-hq/workbench/pkg/telemetry/tracing"
	"mercator-hq/workbench/pkg/uri"
)

// resourceAbortExitCode mirrors a process killed by SIGABRT.
const resourceAbortExitCode = 134

// Server is the asynchronous HTTP server.
type Server struct {
	name    string
	config  config.ServerConfig
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	abort   func(error)

	registry  *uri.Registry
	scheduler *scheduler.Scheduler
	pool      atomic.Pointer[workerPool]
	handler   http.Handler

	abortOnResourceError atomic.Bool

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	running    bool
	errs       chan error
	stopOnce   sync.Once
	stopErr    error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector. A nil collector disables metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAbortFunc replaces the function called on resource exhaustion when
// SetAbortOnResourceError is enabled. The default exits the process.
func WithAbortFunc(fn func(error)) Option {
	return func(s *Server) {
		s.abort = fn
	}
}

// New creates a server. Init must be called before Run.
func New(name string, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		name:     name,
		config:   cfg,
		logger:   slog.Default().With("component", "server"),
		tracer:   tracing.Noop(),
		registry: uri.NewRegistry(),
		errs:     make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.abort == nil {
		s.abort = s.defaultAbort
	}

	s.scheduler = scheduler.New(
		scheduler.WithLogger(s.logger.With("subsystem", "scheduler")),
		scheduler.WithRecorder(s.metrics),
	)

	var h http.Handler = http.HandlerFunc(s.dispatch)
	h = middleware.RequestIDMiddleware(h)
	h = middleware.LoggingMiddleware(h)
	h = middleware.RecoveryMiddleware(h)
	s.handler = h

	return s
}

// Init binds the listening socket. Failures are returned as *BindError.
func (s *Server) Init(address string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyInitialized
	}

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Address: addr, Err: err}
	}

	s.listener = &guardedListener{
		Listener: ln,
		enabled:  &s.abortOnResourceError,
		abort:    s.abort,
	}
	s.logger.Info("server socket bound", "server", s.name, "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Init.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// AddHandler registers an async handler under prefix.
func (s *Server) AddHandler(prefix string, h uri.AsyncHandler) error {
	return s.registry.Add(uri.NewAsyncRoute(prefix, h))
}

// AddBlockingHandler registers a blocking handler under prefix.
func (s *Server) AddBlockingHandler(prefix string, h uri.BlockingHandler) error {
	return s.registry.Add(uri.NewBlockingRoute(prefix, h))
}

// AddRoute registers a prepared route, keeping its security annotation.
func (s *Server) AddRoute(route uri.Route) error {
	return s.registry.Add(route)
}

// SetDefaultHandler installs an async catch-all handler.
func (s *Server) SetDefaultHandler(h uri.AsyncHandler) error {
	return s.registry.SetDefault(uri.NewAsyncRoute("", h))
}

// SetBlockingDefaultHandler installs a blocking catch-all handler.
func (s *Server) SetBlockingDefaultHandler(h uri.BlockingHandler) error {
	return s.registry.SetDefault(uri.NewBlockingRoute("", h))
}

// AddScheduledCommand queues cmd on the server scheduler.
func (s *Server) AddScheduledCommand(cmd scheduler.Command) error {
	return s.scheduler.Add(cmd)
}

// SetAbortOnResourceError sets the failure policy for resource exhaustion
// while accepting connections.
func (s *Server) SetAbortOnResourceError(abort bool) {
	s.abortOnResourceError.Store(abort)
}

// Registry returns the URI registry.
func (s *Server) Registry() *uri.Registry {
	return s.registry
}

// Scheduler returns the scheduled command runner.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Run seals the registry, starts poolSize workers, the scheduler and the
// serve loop, then returns. A poolSize of zero or less uses the configured
// thread pool size. Fatal serve loop errors are delivered on Errors.
func (s *Server) Run(poolSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ErrNotInitialized
	}
	if s.running {
		return ErrAlreadyRunning
	}
	if poolSize <= 0 {
		poolSize = s.config.ThreadPoolSize
	}

	s.registry.Seal()
	pool := newWorkerPool(poolSize, s.logger.With("subsystem", "pool"))
	pool.start()
	s.pool.Store(pool)
	s.scheduler.Start()

	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.running = true

	ln, srv := s.listener, s.httpServer
	go func() {
		s.logger.Info("server running",
			"server", s.name,
			"address", ln.Addr().String(),
			"workers", poolSize,
			"routes", len(s.registry.Routes()),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- fmt.Errorf("serve %s: %w", ln.Addr(), err)
		}
	}()

	return nil
}

// Errors delivers fatal serve loop failures.
func (s *Server) Errors() <-chan error {
	return s.errs
}

// IsRunning reports whether Run has been called and Stop has not.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// ServeHTTP serves one request through the middleware chain and registry.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Stop gracefully shuts the server down: the listener is closed, in-flight
// requests are given until ctx is done, then the pool and scheduler stop.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		srv, pool, ln := s.httpServer, s.pool.Load(), s.listener
		s.running = false
		s.mu.Unlock()

		var errs []error
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		} else if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, fmt.Errorf("close listener: %w", err))
			}
		}
		if pool != nil {
			if err := pool.stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("worker pool: %w", err))
			}
		}
		s.scheduler.Stop()

		s.stopErr = errors.Join(errs...)
		s.logger.Info("server stopped", "server", s.name)
	})
	return s.stopErr
}

func (s *Server) defaultAbort(err error) {
	s.logger.Error("resource exhaustion accepting connection, aborting",
		"server", s.name,
		"error", err,
	)
	os.Exit(resourceAbortExitCode)
}
