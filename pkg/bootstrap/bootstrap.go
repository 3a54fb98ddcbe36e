package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"syscall"

	"mercator-hq/workbench/pkg/addins"
	"mercator-hq/workbench/pkg/options"
	"mercator-hq/workbench/pkg/proxy"
	"mercator-hq/workbench/pkg/security/auth"
	"mercator-hq/workbench/pkg/security/cookie"
	"mercator-hq/workbench/pkg/security/crypto"
	"mercator-hq/workbench/pkg/server"
	"mercator-hq/workbench/pkg/session"
	"mercator-hq/workbench/pkg/signals"
	"mercator-hq/workbench/pkg/system"
	"mercator-hq/workbench/pkg/telemetry/health"
	"mercator-hq/workbench/pkg/telemetry/logging"
	"mercator-hq/workbench/pkg/telemetry/metrics"
	"mercator-hq/workbench/pkg/telemetry/tracing"
)

// ServerName identifies the server in logs.
const ServerName = "workbench"

// umask applied after daemonizing: group and other lose write.
const umask = 0o022

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithPlatform replaces the operating system surface.
func WithPlatform(p Platform) Option {
	return func(s *Sequencer) {
		s.platform = p
	}
}

// WithStreams sets the standard streams used for options and early logs.
func WithStreams(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(s *Sequencer) {
		s.stdin, s.stdout, s.stderr = stdin, stdout, stderr
	}
}

// WithSignalOS replaces signal delivery for the coordinator.
func WithSignalOS(o signals.OS) Option {
	return func(s *Sequencer) {
		s.signalOS = o
	}
}

// WithAddins sets the add-in registry consulted in step 10.
func WithAddins(r *addins.Registry) Option {
	return func(s *Sequencer) {
		s.addins = r
	}
}

// WithProviders sets the authentication provider registry. A provider
// registered before startup suppresses the built-in one.
func WithProviders(r *auth.Registry) Option {
	return func(s *Sequencer) {
		s.providers = r
	}
}

// WithSessionOptions adds options for the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Sequencer) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// WithContext bounds the signal wait; cancelling ctx shuts the server down
// and Main returns ExitSignalWait.
func WithContext(ctx context.Context) Option {
	return func(s *Sequencer) {
		s.ctx = ctx
	}
}

// WithReadyHook runs fn once the server is accepting connections.
func WithReadyHook(fn func(*Context)) Option {
	return func(s *Sequencer) {
		s.ready = fn
	}
}

// Sequencer runs the startup steps.
type Sequencer struct {
	platform    Platform
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	signalOS    signals.OS
	addins      *addins.Registry
	providers   *auth.Registry
	sessionOpts []session.Option
	ctx         context.Context
	ready       func(*Context)
}

// New returns a sequencer for the real process.
func New(opts ...Option) *Sequencer {
	s := &Sequencer{
		platform: SystemPlatform{},
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.addins == nil {
		s.addins = addins.NewRegistry()
	}
	if s.providers == nil {
		s.providers = auth.NewRegistry()
	}
	return s
}

// Main runs the server with the real process environment and returns its
// exit code.
func Main(args []string) int {
	return New().Main(args)
}

// Main runs every step and returns the exit code. Panics anywhere in
// startup or the wait loop are converted to ExitUnexpected.
func (s *Sequencer) Main(args []string) (code int) {
	c := &Context{
		Logger:    slog.Default(),
		Providers: s.providers,
		platform:  s.platform,
		stdin:     s.stdin,
		stdout:    s.stdout,
		stderr:    s.stderr,
	}
	c.background, c.cancel = context.WithCancel(s.ctx)

	defer func() {
		if rec := recover(); rec != nil {
			c.Logger.Error("unexpected failure",
				"error", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			c.shutdown()
			code = ExitUnexpected
		}
	}()

	return s.exitCode(c, s.run(c, args))
}

func (s *Sequencer) exitCode(c *Context, err error) int {
	var (
		req  exitRequest
		step *StepError
		term *signals.TerminatedError
	)
	switch {
	case err == nil:
		c.shutdown()
		return ExitSuccess
	case errors.As(err, &req):
		c.shutdown()
		return int(req)
	case errors.As(err, &term):
		return term.ExitCode()
	case errors.As(err, &step):
		c.Logger.Error("startup failed",
			"step", step.Step,
			"exit_code", step.Code,
			"error", step.Err,
		)
		c.shutdown()
		return step.Code
	default:
		c.Logger.Error("unexpected failure", "error", err)
		c.shutdown()
		return ExitUnexpected
	}
}

func (s *Sequencer) run(c *Context, args []string) error {
	// 1. Logging: warnings to stderr until the configuration is read.
	logger, err := logging.Install(logging.Config{Level: "warn", Format: "text", Redact: true, Writer: c.stderr})
	if err != nil {
		return fatal("logging", ExitUnexpected, err)
	}
	c.Logger = logger

	// 2. A client closing its connection must not kill the server.
	c.platform.IgnoreSignal(syscall.SIGPIPE)

	// 3. Options and configuration.
	opts, status := options.Parse(args, c.stdin, c.stdout, c.stderr)
	if status.Exit() {
		return exitRequest(status.Code())
	}
	c.Options, c.Config = opts, opts.Config
	if err := s.initTelemetry(c); err != nil {
		return fatal("telemetry", ExitOptions, err)
	}

	// 4. Process setup.
	if c.Config.Server.Daemonize {
		detached, err := c.platform.Daemonize()
		if err != nil {
			return fatal("daemonize", ExitDaemonize, err)
		}
		if !detached {
			return exitRequest(ExitSuccess)
		}
	}
	c.platform.IgnoreTerminalSignals()
	c.platform.SetUmask(umask)

	// 5. Session environment.
	detectCtx, cancelDetect := c.background, context.CancelFunc(func() {})
	if d := c.Config.R.DetectTimeout; d > 0 {
		detectCtx, cancelDetect = context.WithTimeout(c.background, d)
	}
	env, err := c.platform.DetectEnvironment(detectCtx, c.Config.R)
	cancelDetect()
	if err != nil {
		return fatal("environment", ExitEnvironment, err)
	}
	c.REnv = env

	// 6. Resource limits.
	if c.platform.RealUserIsRoot() {
		if err := c.platform.SetFileLimit(c.Config.Server.FileLimit); err != nil {
			return fatal("file limit", ExitResourceLimit, err)
		}
	}

	// 7. Working directory.
	if dir := c.Config.Server.WorkingDir; dir != "" {
		if err := c.platform.ChangeWorkingDir(dir); err != nil {
			return fatal("working directory", ExitWorkingDir, err)
		}
	}

	// 8. Crypto, secure cookies, session proxy.
	if err := crypto.Initialize(); err != nil {
		return fatal("crypto", ExitCrypto, err)
	}
	codec, err := cookie.Initialize(cookie.Config{
		KeyFile: c.Config.Auth.CookieKeyFile,
		Secure:  c.Config.Auth.CookieSecure,
	})
	if err != nil {
		return fatal("secure cookie", ExitCookie, err)
	}
	c.Codec = codec
	if err := s.initProxy(c); err != nil {
		return fatal("session proxy", ExitProxy, err)
	}

	// 9. Listening socket.
	c.Server = server.New(ServerName, c.Config.Server,
		server.WithLogger(c.Logger.With("component", "server")),
		server.WithMetrics(c.Metrics),
		server.WithTracer(c.Tracer),
	)
	c.Server.SetAbortOnResourceError(true)
	if err := c.Server.Init(c.Config.Server.Address, c.Config.Server.Port); err != nil {
		return fatal("bind", ExitBind, err)
	}

	// 10. Routes.
	if err := s.registerRoutes(c); err != nil {
		return err
	}

	// 11. Best-effort confinement.
	if c.Config.Server.AppArmor {
		if err := c.platform.EnforceRestricted(system.RestrictedProfile); err != nil {
			c.Logger.Warn("failed to enforce restricted profile",
				"profile", system.RestrictedProfile,
				"error", err,
			)
		}
	}

	// 12. Privilege drop, after every privileged resource exists.
	if c.platform.RealUserIsRoot() && c.Config.Server.ServerUser != "" {
		if err := s.dropPrivileges(c); err != nil {
			return fatal("privilege drop", ExitPrivilegeDrop, err)
		}
	}

	// 13. One-shot installation check.
	if c.Options.VerifyInstallation {
		if err := c.Proxy.RunVerifyInstallationSession(c.background); err != nil {
			return fatal("verify installation", ExitVerifyFailed, err)
		}
		c.Logger.Info("installation verified")
		return exitRequest(ExitSuccess)
	}

	// 14. Serve. Signals are armed before any worker starts.
	coord := signals.New(signals.Hooks{
		OnChildExit: c.Sessions.NotifySIGCHLD,
		Cleanup:     c.cleanup,
	}, s.signalOptions(c)...)
	if err := coord.Arm(); err != nil {
		return fatal("signals", ExitSignalWait, err)
	}
	if err := c.Server.Run(c.Config.Server.ThreadPoolSize); err != nil {
		return fatal("run", ExitServerRun, err)
	}
	c.Health.MarkReady()
	c.Logger.Info("workbench server started",
		"address", c.Server.Addr().String(),
		"offline", c.Config.Server.Offline,
		"session_mode", c.Config.Session.Mode,
	)
	if s.ready != nil {
		s.ready(c)
	}

	// 15. Wait. A fatal serve error cancels the wait.
	return s.wait(c, coord)
}

func (s *Sequencer) wait(c *Context, coord *signals.Coordinator) error {
	ctx, cancel := context.WithCancel(c.background)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		select {
		case err := <-c.Server.Errors():
			serveErr <- err
			cancel()
		case <-ctx.Done():
		}
	}()

	err := coord.Wait(ctx)
	var term *signals.TerminatedError
	if errors.As(err, &term) {
		return term
	}
	select {
	case serr := <-serveErr:
		return fatal("run", ExitServerRun, serr)
	default:
		return fatal("signals", ExitSignalWait, err)
	}
}

func (s *Sequencer) signalOptions(c *Context) []signals.Option {
	opts := []signals.Option{signals.WithLogger(c.Logger.With("component", "signals"))}
	if s.signalOS != nil {
		opts = append(opts, signals.WithOS(s.signalOS))
	}
	return opts
}

// initTelemetry reconfigures logging from the loaded configuration and
// creates the metrics, health and tracing collaborators.
func (s *Sequencer) initTelemetry(c *Context) error {
	logger, err := logging.Install(logging.FromConfig(c.Config.Telemetry.Logging, c.stderr))
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	c.Logger = logger

	c.Metrics = metrics.NewCollector(&c.Config.Telemetry.Metrics, nil)
	c.Health = health.New(c.Config.Telemetry.Health.CheckTimeout)

	tracer, err := tracing.New(&c.Config.Telemetry.Tracing)
	if err != nil {
		return fmt.Errorf("failed to configure tracing: %w", err)
	}
	c.Tracer = tracer
	return nil
}

func (s *Sequencer) initProxy(c *Context) error {
	cfg := c.Config.Session

	opts := []session.Option{
		session.WithLogger(c.Logger.With("component", "session")),
		session.WithRecorder(c.Metrics),
		session.WithLauncher(&session.ExecLauncher{
			Command:    cfg.Command,
			Args:       cfg.Args,
			SwitchUser: c.platform.RealUserIsRoot(),
			Privileged: c.withPrivileges,
		}),
	}
	if c.REnv != nil {
		opts = append(opts, session.WithEnv(c.REnv.Vars()...))
	}
	opts = append(opts, s.sessionOpts...)

	sessions, err := session.NewManager(cfg, opts...)
	if err != nil {
		return err
	}
	c.Sessions = sessions

	p, err := proxy.Initialize(cfg, sessions,
		proxy.WithLogger(c.Logger.With("component", "proxy")),
		proxy.WithRecorder(c.Metrics),
	)
	if err != nil {
		return err
	}
	c.Proxy = p
	return nil
}

// dropPrivileges switches to the server user. Client log files created as
// root are handed over first so the unprivileged server can keep writing.
func (s *Sequencer) dropPrivileges(c *Context) error {
	p, err := c.platform.TemporarilyDropPriv(c.Config.Server.ServerUser)
	if err != nil {
		return err
	}
	c.privileges.Store(p)

	if o, ok := c.ClientLog.(interface{ Chown(uid, gid int) error }); ok {
		if err := p.WithRestoredPriv(func() error { return o.Chown(p.UID, p.GID) }); err != nil {
			return fmt.Errorf("failed to hand client log to %s: %w", p.User, err)
		}
	}
	c.Logger.Info("dropped privileges", "user", p.User, "uid", p.UID)
	return nil
}
