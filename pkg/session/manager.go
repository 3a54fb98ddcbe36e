package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"

	"mercator-hq/workbench/pkg/config"
)

// VerifyInstallationFlag is passed to the session command to run its
// installation self-check.
const VerifyInstallationFlag = "--verify-installation=1"

// Recorder receives session lifecycle events.
type Recorder interface {
	RecordSessionLaunch(outcome string)
	RecordChildReaped()
	SetActiveSessions(n int)
}

type noopRecorder struct{}

func (noopRecorder) RecordSessionLaunch(string) {}
func (noopRecorder) RecordChildReaped()         {}
func (noopRecorder) SetActiveSessions(int)      {}

// procOps are the process-control calls the manager makes.
type procOps struct {
	// wait4 reaps pid without blocking. reaped is false while it runs.
	wait4 func(pid int) (reaped bool, status unix.WaitStatus, err error)
	kill  func(pid int, sig unix.Signal) error
}

var systemProcOps = procOps{
	wait4: func(pid int) (bool, unix.WaitStatus, error) {
		var ws unix.WaitStatus
		got, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		return err == nil && got == pid, ws, err
	},
	kill: unix.Kill,
}

// Option configures a Manager.
type Option func(*Manager)

// WithLauncher replaces the process launcher.
func WithLauncher(l Launcher) Option {
	return func(m *Manager) {
		m.launcher = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithEnv adds environment entries passed to every launched session.
func WithEnv(env ...string) Option {
	return func(m *Manager) {
		m.env = append(m.env, env...)
	}
}

// Manager owns the set of running sessions.
type Manager struct {
	cfg      config.SessionConfig
	static   *url.URL
	launcher Launcher
	logger   *slog.Logger
	recorder Recorder
	proc     procOps
	verify   func(ctx context.Context) ([]byte, error)
	now      func() time.Time

	launches singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
	byPID    map[int]*Session
	env      []string
	onExit   []func(*Session)
	closed   bool
}

// NewManager returns a manager for cfg.
func NewManager(cfg config.SessionConfig, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:      cfg,
		logger:   slog.Default().With("component", "session"),
		recorder: noopRecorder{},
		proc:     systemProcOps,
		now:      time.Now,
		sessions: make(map[string]*Session),
		byPID:    make(map[int]*Session),
	}

	switch cfg.Mode {
	case config.SessionModeStatic:
		u, err := url.Parse(cfg.StaticURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid static session URL %q", cfg.StaticURL)
		}
		m.static = u
	case config.SessionModeLaunch, "":
		m.launcher = &ExecLauncher{Command: cfg.Command, Args: cfg.Args}
	default:
		return nil, fmt.Errorf("unknown session mode %q", cfg.Mode)
	}

	m.verify = func(ctx context.Context) ([]byte, error) {
		return exec.CommandContext(ctx, cfg.Command, VerifyInstallationFlag).CombinedOutput()
	}

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SetEnv adds environment entries for sessions launched from now on.
func (m *Manager) SetEnv(env ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.env = append(m.env, env...)
}

// OnExit registers fn to run after a session's process has been reaped.
func (m *Manager) OnExit(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onExit = append(m.onExit, fn)
}

// Static reports whether the manager forwards to a single static back end.
func (m *Manager) Static() bool {
	return m.static != nil
}

// EnsureSession returns the running session for user, launching one if
// needed. Concurrent calls for the same user share one launch.
func (m *Manager) EnsureSession(ctx context.Context, user string) (*Session, error) {
	if user == "" {
		if m.static != nil {
			return &Session{URL: m.static, Started: m.now()}, nil
		}
		return nil, ErrAnonymous
	}
	if err := ValidateUser(user); err != nil {
		return nil, fmt.Errorf("%w: %q", err, user)
	}
	if m.static != nil {
		return &Session{User: user, URL: m.static, Started: m.now()}, nil
	}

	if s, ok, err := m.lookup(user); err != nil || ok {
		return s, err
	}

	ch := m.launches.DoChan(user, func() (any, error) {
		return m.launch(user)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup returns the running session for user.
func (m *Manager) Lookup(user string) (*Session, bool) {
	s, ok, _ := m.lookup(user)
	return s, ok
}

func (m *Manager) lookup(user string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, ErrShutdown
	}
	s, ok := m.sessions[user]
	return s, ok, nil
}

// Active returns the number of running sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

// Users returns the users with a running session, sorted.
func (m *Manager) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]string, 0, len(m.sessions))
	for u := range m.sessions {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func (m *Manager) launch(user string) (*Session, error) {
	// A launch that finished between lookup and DoChan already registered.
	if s, ok, err := m.lookup(user); err != nil || ok {
		return s, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.LaunchTimeout)
	defer cancel()

	socketPath := filepath.Join(m.cfg.SocketDir, user+".sock")
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.recorder.RecordSessionLaunch("error")
		return nil, fmt.Errorf("failed to remove stale socket %s: %w", socketPath, err)
	}

	m.mu.Lock()
	env := append([]string{"WORKBENCH_USER=" + user, "WORKBENCH_SOCKET=" + socketPath}, m.env...)
	m.mu.Unlock()

	start := m.now()
	pid, err := m.launcher.Launch(ctx, LaunchSpec{User: user, SocketPath: socketPath, Env: env})
	if err != nil {
		m.recorder.RecordSessionLaunch("error")
		return nil, err
	}

	s := &Session{User: user, PID: pid, SocketPath: socketPath, Started: start}
	m.mu.Lock()
	m.byPID[pid] = s
	m.mu.Unlock()

	m.logger.Info("session launched", "user", user, "pid", pid, "socket", socketPath)

	if err := m.waitReady(ctx, s); err != nil {
		m.recorder.RecordSessionLaunch("timeout")
		m.logger.Error("session failed to start", "user", user, "pid", pid, "error", err)
		if m.tracked(pid) {
			_ = m.proc.kill(-pid, unix.SIGTERM)
		}
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = m.proc.kill(-pid, unix.SIGTERM)
		return nil, ErrShutdown
	}
	m.sessions[user] = s
	active := len(m.sessions)
	m.mu.Unlock()

	m.recorder.RecordSessionLaunch("ok")
	m.recorder.SetActiveSessions(active)
	m.logger.Info("session ready",
		"user", user,
		"pid", pid,
		"startup_ms", m.now().Sub(start).Milliseconds(),
	)
	return s, nil
}

// waitReady polls the session socket until it accepts a connection, the
// process exits, or ctx expires.
func (m *Manager) waitReady(ctx context.Context, s *Session) error {
	b := &backoff.Backoff{Min: 20 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: true}
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "unix", s.SocketPath)
		if err == nil {
			conn.Close()
			return nil
		}

		m.NotifySIGCHLD()
		if !m.tracked(s.PID) {
			return fmt.Errorf("session for %s exited during startup", s.User)
		}

		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w after %s: %v", ErrLaunchTimeout, m.cfg.LaunchTimeout, err)
		case <-timer.C:
		}
	}
}

func (m *Manager) tracked(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.byPID[pid]
	return ok
}

// NotifySIGCHLD reaps every exited session process without blocking and
// forgets its session.
func (m *Manager) NotifySIGCHLD() {
	m.mu.Lock()
	pids := make([]int, 0, len(m.byPID))
	for pid := range m.byPID {
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	for _, pid := range pids {
		reaped, status, err := m.proc.wait4(pid)
		switch {
		case errors.Is(err, unix.ECHILD):
			// Reaped elsewhere; the process is gone either way.
		case err != nil:
			m.logger.Warn("wait4 failed", "pid", pid, "error", err)
			continue
		case !reaped:
			continue
		}
		m.forget(pid, status)
	}
}

func (m *Manager) forget(pid int, status unix.WaitStatus) {
	m.mu.Lock()
	s, ok := m.byPID[pid]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.byPID, pid)
	if cur, ok := m.sessions[s.User]; ok && cur == s {
		delete(m.sessions, s.User)
	}
	active := len(m.sessions)
	hooks := append([]func(*Session){}, m.onExit...)
	m.mu.Unlock()

	attrs := []any{"user", s.User, "pid", pid, "uptime", m.now().Sub(s.Started).Round(time.Second).String()}
	if status.Signaled() {
		attrs = append(attrs, "signal", status.Signal().String())
	} else {
		attrs = append(attrs, "exit_code", status.ExitStatus())
	}
	m.logger.Info("session exited", attrs...)

	m.recorder.RecordChildReaped()
	m.recorder.SetActiveSessions(active)
	for _, fn := range hooks {
		fn(s)
	}
}

// Shutdown terminates every session process group and waits for them to
// be reaped. Processes still alive when ctx ends are killed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	pids := make([]int, 0, len(m.byPID))
	for pid := range m.byPID {
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	if len(pids) == 0 {
		return nil
	}
	m.logger.Info("terminating sessions", "count", len(pids))
	for _, pid := range pids {
		if err := m.proc.kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			m.logger.Warn("failed to signal session", "pid", pid, "error", err)
		}
	}

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		m.NotifySIGCHLD()
		remaining := m.remaining()
		if len(remaining) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			for _, pid := range remaining {
				_ = m.proc.kill(-pid, unix.SIGKILL)
			}
			m.NotifySIGCHLD()
			if left := m.remaining(); len(left) > 0 {
				return fmt.Errorf("%d sessions not reaped: %w", len(left), ctx.Err())
			}
			return nil
		case <-tick.C:
		}
	}
}

func (m *Manager) remaining() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pids := make([]int, 0, len(m.byPID))
	for pid := range m.byPID {
		pids = append(pids, pid)
	}
	return pids
}

// RunVerifyInstallation runs the session command's installation check.
func (m *Manager) RunVerifyInstallation(ctx context.Context) error {
	if m.static != nil {
		return fmt.Errorf("%w: not available for a static back end", ErrVerificationFailed)
	}
	out, err := m.verify(ctx)
	if text := strings.TrimSpace(string(out)); text != "" {
		m.logger.Info("session verification output", "output", text)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return nil
}
