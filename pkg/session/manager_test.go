package session

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"mercator-hq/workbench/pkg/config"
)

// fakeLauncher "starts" a session by listening on its socket.
type fakeLauncher struct {
	mu        sync.Mutex
	nextPID   int
	launches  atomic.Int32
	delay     time.Duration
	noListen  bool
	err       error
	specs     []LaunchSpec
	listeners []net.Listener
}

func (l *fakeLauncher) Launch(_ context.Context, spec LaunchSpec) (int, error) {
	l.launches.Add(1)
	if l.err != nil {
		return 0, l.err
	}

	l.mu.Lock()
	l.nextPID++
	pid := 1000 + l.nextPID
	l.specs = append(l.specs, spec)
	l.mu.Unlock()

	if !l.noListen {
		go func() {
			time.Sleep(l.delay)
			ln, err := net.Listen("unix", spec.SocketPath)
			if err != nil {
				return
			}
			l.mu.Lock()
			l.listeners = append(l.listeners, ln)
			l.mu.Unlock()
		}()
	}
	return pid, nil
}

func (l *fakeLauncher) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ln := range l.listeners {
		ln.Close()
	}
}

// fakeProcs tracks which fake pids have exited and which signals were sent.
type fakeProcs struct {
	mu      sync.Mutex
	exited  map[int]bool
	signals []string
	// exitOnTerm makes SIGTERM terminate the process.
	exitOnTerm bool
}

func newFakeProcs() *fakeProcs {
	return &fakeProcs{exited: map[int]bool{}}
}

func (p *fakeProcs) exit(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited[pid] = true
}

func (p *fakeProcs) ops() procOps {
	return procOps{
		wait4: func(pid int) (bool, unix.WaitStatus, error) {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.exited[pid] {
				delete(p.exited, pid)
				return true, 0, nil
			}
			return false, 0, nil
		},
		kill: func(pid int, sig unix.Signal) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.signals = append(p.signals, unix.SignalName(sig))
			if sig == unix.SIGKILL || (sig == unix.SIGTERM && p.exitOnTerm) {
				p.exited[-pid] = true
			}
			return nil
		},
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	launches []string
	reaped   int
	active   int
}

func (r *fakeRecorder) RecordSessionLaunch(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launches = append(r.launches, outcome)
}

func (r *fakeRecorder) RecordChildReaped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reaped++
}

func (r *fakeRecorder) SetActiveSessions(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = n
}

func socketDir(t *testing.T) string {
	t.Helper()
	// Unix socket paths are length limited; keep the directory short.
	dir, err := os.MkdirTemp("", "wbs")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func newTestManager(t *testing.T, l *fakeLauncher, p *fakeProcs, opts ...Option) *Manager {
	t.Helper()
	cfg := config.SessionConfig{
		Mode:          config.SessionModeLaunch,
		Command:       "/bin/false",
		SocketDir:     socketDir(t),
		LaunchTimeout: 2 * time.Second,
	}
	m, err := NewManager(cfg, append([]Option{WithLauncher(l)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	m.proc = p.ops()
	t.Cleanup(l.close)
	return m
}

func TestManager_EnsureSession(t *testing.T) {
	l := &fakeLauncher{}
	rec := &fakeRecorder{}
	m := newTestManager(t, l, newFakeProcs(), WithRecorder(rec), WithEnv("EXTRA=1"))
	m.SetEnv("WORKBENCH_SHARED_SECRET=abc")

	s, err := m.EnsureSession(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if s.User != "alice" || s.PID == 0 || s.Static() {
		t.Errorf("session = %+v", s)
	}
	if filepath.Base(s.SocketPath) != "alice.sock" {
		t.Errorf("socket = %q", s.SocketPath)
	}

	again, err := m.EnsureSession(context.Background(), "alice")
	if err != nil || again != s {
		t.Errorf("second EnsureSession() = %v, %v; want the running session", again, err)
	}
	if n := l.launches.Load(); n != 1 {
		t.Errorf("launches = %d, want 1", n)
	}

	env := strings.Join(l.specs[0].Env, " ")
	for _, want := range []string{"WORKBENCH_USER=alice", "EXTRA=1", "WORKBENCH_SHARED_SECRET=abc"} {
		if !strings.Contains(env, want) {
			t.Errorf("launch env %q missing %s", env, want)
		}
	}
	if rec.active != 1 || len(rec.launches) != 1 || rec.launches[0] != "ok" {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestManager_ConcurrentLaunchesCollapse(t *testing.T) {
	l := &fakeLauncher{delay: 100 * time.Millisecond}
	m := newTestManager(t, l, newFakeProcs())

	const n = 10
	var wg sync.WaitGroup
	sessions := make([]*Session, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = m.EnsureSession(context.Background(), "bob")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("EnsureSession() error = %v", errs[i])
		}
		if sessions[i] != sessions[0] {
			t.Error("callers received different sessions")
		}
	}
	if got := l.launches.Load(); got != 1 {
		t.Errorf("launches = %d, want 1", got)
	}
}

func TestManager_InvalidUser(t *testing.T) {
	m := newTestManager(t, &fakeLauncher{}, newFakeProcs())
	if _, err := m.EnsureSession(context.Background(), ""); !errors.Is(err, ErrAnonymous) {
		t.Errorf("EnsureSession(\"\") error = %v, want ErrAnonymous", err)
	}
	for _, user := range []string{"../etc", "a/b", ".hidden", strings.Repeat("x", 65)} {
		if _, err := m.EnsureSession(context.Background(), user); !errors.Is(err, ErrInvalidUser) {
			t.Errorf("EnsureSession(%q) error = %v, want ErrInvalidUser", user, err)
		}
	}
}

func TestManager_LaunchFailures(t *testing.T) {
	t.Run("launcher error", func(t *testing.T) {
		boom := errors.New("exec failed")
		m := newTestManager(t, &fakeLauncher{err: boom}, newFakeProcs())
		if _, err := m.EnsureSession(context.Background(), "carol"); !errors.Is(err, boom) {
			t.Errorf("error = %v, want %v", err, boom)
		}
	})

	t.Run("never ready", func(t *testing.T) {
		procs := newFakeProcs()
		l := &fakeLauncher{noListen: true}
		m := newTestManager(t, l, procs)
		m.cfg.LaunchTimeout = 200 * time.Millisecond

		_, err := m.EnsureSession(context.Background(), "carol")
		if !errors.Is(err, ErrLaunchTimeout) {
			t.Fatalf("error = %v, want ErrLaunchTimeout", err)
		}
		if len(procs.signals) == 0 || procs.signals[0] != "SIGTERM" {
			t.Errorf("signals = %v, want SIGTERM to the stuck session", procs.signals)
		}
		if _, ok := m.Lookup("carol"); ok {
			t.Error("failed session was registered")
		}
	})

	t.Run("exits during startup", func(t *testing.T) {
		procs := newFakeProcs()
		l := &fakeLauncher{noListen: true}
		m := newTestManager(t, l, procs)
		procs.exit(1001)

		_, err := m.EnsureSession(context.Background(), "carol")
		if err == nil || !strings.Contains(err.Error(), "exited during startup") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("caller context", func(t *testing.T) {
		l := &fakeLauncher{delay: 500 * time.Millisecond}
		m := newTestManager(t, l, newFakeProcs())
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := m.EnsureSession(ctx, "dave"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
	})
}

func TestManager_NotifySIGCHLD(t *testing.T) {
	procs := newFakeProcs()
	rec := &fakeRecorder{}
	m := newTestManager(t, &fakeLauncher{}, procs, WithRecorder(rec))

	var exited []string
	m.OnExit(func(s *Session) { exited = append(exited, s.User) })

	alice, err := m.EnsureSession(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.EnsureSession(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}

	// Nothing has exited yet.
	m.NotifySIGCHLD()
	if m.Active() != 2 {
		t.Fatalf("Active() = %d, want 2", m.Active())
	}

	procs.exit(alice.PID)
	m.NotifySIGCHLD()

	if got := m.Users(); len(got) != 1 || got[0] != "bob" {
		t.Errorf("Users() = %v, want [bob]", got)
	}
	if len(exited) != 1 || exited[0] != "alice" {
		t.Errorf("exit hooks = %v", exited)
	}
	if rec.reaped != 1 || rec.active != 1 {
		t.Errorf("recorder = %+v", rec)
	}

	relaunched, err := m.EnsureSession(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if relaunched.Key() == alice.Key() {
		t.Error("relaunched session has the same key")
	}
}

func TestManager_Shutdown(t *testing.T) {
	t.Run("graceful", func(t *testing.T) {
		procs := newFakeProcs()
		procs.exitOnTerm = true
		m := newTestManager(t, &fakeLauncher{}, procs)
		if _, err := m.EnsureSession(context.Background(), "alice"); err != nil {
			t.Fatal(err)
		}

		if err := m.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if m.Active() != 0 {
			t.Errorf("Active() = %d after shutdown", m.Active())
		}
		if _, err := m.EnsureSession(context.Background(), "alice"); !errors.Is(err, ErrShutdown) {
			t.Errorf("EnsureSession() after Shutdown error = %v", err)
		}
	})

	t.Run("forced", func(t *testing.T) {
		procs := newFakeProcs()
		m := newTestManager(t, &fakeLauncher{}, procs)
		if _, err := m.EnsureSession(context.Background(), "alice"); err != nil {
			t.Fatal(err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		if err := m.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if got := strings.Join(procs.signals, ","); got != "SIGTERM,SIGKILL" {
			t.Errorf("signals = %s, want SIGTERM,SIGKILL", got)
		}
	})
}

func TestManager_StaticMode(t *testing.T) {
	m, err := NewManager(config.SessionConfig{Mode: config.SessionModeStatic, StaticURL: "http://127.0.0.1:8788"})
	if err != nil {
		t.Fatal(err)
	}
	s, err := m.EnsureSession(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Static() || s.URL.Host != "127.0.0.1:8788" {
		t.Errorf("session = %+v", s)
	}
	if anon, err := m.EnsureSession(context.Background(), ""); err != nil || anon.User != "" || !anon.Static() {
		t.Errorf("anonymous EnsureSession() = %+v, %v", anon, err)
	}
	if err := m.RunVerifyInstallation(context.Background()); !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("RunVerifyInstallation() error = %v", err)
	}

	if _, err := NewManager(config.SessionConfig{Mode: config.SessionModeStatic, StaticURL: "not a url"}); err == nil {
		t.Error("NewManager() accepted an invalid static URL")
	}
}

func TestManager_RunVerifyInstallation(t *testing.T) {
	m := newTestManager(t, &fakeLauncher{}, newFakeProcs())

	m.verify = func(context.Context) ([]byte, error) { return []byte("ok\n"), nil }
	if err := m.RunVerifyInstallation(context.Background()); err != nil {
		t.Errorf("RunVerifyInstallation() error = %v", err)
	}

	m.verify = func(context.Context) ([]byte, error) { return []byte("R not found"), errors.New("exit status 1") }
	if err := m.RunVerifyInstallation(context.Background()); !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("RunVerifyInstallation() error = %v, want ErrVerificationFailed", err)
	}
}
