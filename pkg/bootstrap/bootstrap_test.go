package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"mercator-hq/workbench/pkg/config"
	"mercator-hq/workbench/pkg/renv"
	"mercator-hq/workbench/pkg/security/auth"
	"mercator-hq/workbench/pkg/system"
)

type fakePlatform struct {
	mu       sync.Mutex
	calls    []string
	root     bool
	envErr   error
	chdirErr error
}

func (p *fakePlatform) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePlatform) called(call string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (p *fakePlatform) IgnoreSignal(os.Signal) { p.record("ignore-signal") }
func (p *fakePlatform) IgnoreTerminalSignals() { p.record("ignore-terminal") }
func (p *fakePlatform) RealUserIsRoot() bool   { return p.root }

func (p *fakePlatform) SetFileLimit(uint64) error {
	p.record("file-limit")
	return nil
}

func (p *fakePlatform) EnforceRestricted(string) error {
	p.record("restricted")
	return nil
}

func (p *fakePlatform) ChangeWorkingDir(string) error {
	p.record("chdir")
	return p.chdirErr
}

func (p *fakePlatform) SetUmask(int) int {
	p.record("umask")
	return 0
}

func (p *fakePlatform) Daemonize() (bool, error) {
	p.record("daemonize")
	return true, nil
}

func (p *fakePlatform) TemporarilyDropPriv(string) (*system.Privileges, error) {
	p.record("drop-priv")
	return nil, system.ErrNotRoot
}

func (p *fakePlatform) DetectEnvironment(context.Context, config.REnvironmentConfig) (*renv.Environment, error) {
	p.record("detect")
	if p.envErr != nil {
		return nil, p.envErr
	}
	return &renv.Environment{Home: "/usr/lib/R"}, nil
}

// fakeSignals delivers signals only when the test sends them.
type fakeSignals struct {
	mu sync.Mutex
	ch chan<- os.Signal
}

func (f *fakeSignals) Notify(c chan<- os.Signal, _ ...os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = c
}

func (f *fakeSignals) Stop(chan<- os.Signal)      {}
func (f *fakeSignals) Reset(...os.Signal)         {}
func (f *fakeSignals) Raise(syscall.Signal) error { return nil }

func (f *fakeSignals) send(sig os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch <- sig
}

type fakeProvider struct{}

func (fakeProvider) Name() string      { return "sso" }
func (fakeProvider) SignInURL() string { return "/sso/sign-in" }

type fixture struct {
	port       int
	workingDir string
	command    string
	extra      string
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func lookCommand(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

// writeConfig lays out a document root, an empty users file and a config
// file pointing at them.
func writeConfig(t *testing.T, f fixture) string {
	t.Helper()
	dir := t.TempDir()
	www := filepath.Join(dir, "www")
	docs := filepath.Join(www, "docs")
	if err := os.MkdirAll(docs, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		filepath.Join(www, "index.html"):  "<html>shell</html>",
		filepath.Join(www, "app.js"):      "console.log(1)",
		filepath.Join(docs, "index.html"): "<html>docs</html>",
		filepath.Join(dir, "users"):       "# no users\n",
	} {
		if err := os.WriteFile(name, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if f.port == 0 {
		f.port = freePort(t)
	}
	if f.workingDir == "" {
		f.workingDir = dir
	}
	if f.command == "" {
		f.command = "/nonexistent/session"
	}

	content := fmt.Sprintf(`server:
  address: 127.0.0.1
  port: %d
  www_root: %s
  docs_root: %s
  working_dir: %s
auth:
  cookie_key_file: %s
  users_file: %s
  watch_users_file: false
session:
  mode: launch
  command: %s
  socket_dir: %s
telemetry:
  logging:
    level: error
    format: text
%s`, f.port, www, docs, f.workingDir,
		filepath.Join(dir, "keys", "cookie"),
		filepath.Join(dir, "users"),
		f.command, filepath.Join(dir, "run"),
		f.extra,
	)
	path := filepath.Join(dir, "workbench.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newSequencer(p *fakePlatform, sig *fakeSignals, opts ...Option) *Sequencer {
	base := []Option{
		WithPlatform(p),
		WithSignalOS(sig),
		WithStreams(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}),
	}
	return New(append(base, opts...)...)
}

func TestMain_ExitCodes(t *testing.T) {
	cases := []struct {
		name     string
		platform *fakePlatform
		args     func(t *testing.T) []string
		want     int
	}{
		{
			name:     "unknown flag",
			platform: &fakePlatform{},
			args:     func(*testing.T) []string { return []string{"--bogus"} },
			want:     ExitOptions,
		},
		{
			name:     "help",
			platform: &fakePlatform{},
			args:     func(*testing.T) []string { return []string{"--help"} },
			want:     ExitSuccess,
		},
		{
			name:     "missing config file",
			platform: &fakePlatform{},
			args: func(t *testing.T) []string {
				return []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}
			},
			want: ExitOptions,
		},
		{
			name:     "environment detection",
			platform: &fakePlatform{envErr: renv.ErrRNotFound},
			args: func(t *testing.T) []string {
				return []string{"--config", writeConfig(t, fixture{})}
			},
			want: ExitEnvironment,
		},
		{
			name:     "working directory",
			platform: &fakePlatform{chdirErr: os.ErrNotExist},
			args: func(t *testing.T) []string {
				return []string{"--config", writeConfig(t, fixture{})}
			},
			want: ExitWorkingDir,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := newSequencer(tc.platform, &fakeSignals{}).Main(tc.args(t))
			if got != tc.want {
				t.Errorf("exit code = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMain_StepsBeforeFailure(t *testing.T) {
	p := &fakePlatform{chdirErr: os.ErrPermission}
	newSequencer(p, &fakeSignals{}).Main([]string{"--config", writeConfig(t, fixture{})})

	for _, call := range []string{"ignore-signal", "ignore-terminal", "umask", "detect", "chdir"} {
		if !p.called(call) {
			t.Errorf("%s not called before the failing step", call)
		}
	}
	for _, call := range []string{"daemonize", "file-limit", "drop-priv"} {
		if p.called(call) {
			t.Errorf("%s called for a non-daemon, non-root run", call)
		}
	}
}

func TestMain_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	path := writeConfig(t, fixture{port: ln.Addr().(*net.TCPAddr).Port})
	if got := newSequencer(&fakePlatform{}, &fakeSignals{}).Main([]string{"--config", path}); got != ExitBind {
		t.Errorf("exit code = %d, want %d", got, ExitBind)
	}
}

func TestMain_VerifyInstallation(t *testing.T) {
	cases := []struct {
		name    string
		command string
		want    int
	}{
		{"pass", "true", ExitSuccess},
		{"fail", "false", ExitVerifyFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, fixture{command: lookCommand(t, tc.command)})
			got := newSequencer(&fakePlatform{}, &fakeSignals{}).Main([]string{"--config", path, "--verify-installation"})
			if got != tc.want {
				t.Errorf("exit code = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMain_AddinFailure(t *testing.T) {
	path := writeConfig(t, fixture{extra: "addins:\n  enabled: [does-not-exist]\n"})
	if got := newSequencer(&fakePlatform{}, &fakeSignals{}).Main([]string{"--config", path}); got != ExitAddins {
		t.Errorf("exit code = %d, want %d", got, ExitAddins)
	}
}

type probe struct {
	path       string
	wantStatus int
	wantBody   string
}

// serve runs the sequencer until ready, checks probes against the live
// server, then stops it with stop and returns the exit code.
func serve(t *testing.T, seq *Sequencer, args []string, probes []probe, inspect func(*Context)) int {
	t.Helper()
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	var ready bool
	WithReadyHook(func(c *Context) {
		ready = true
		base := "http://" + c.Server.Addr().String()
		for _, pr := range probes {
			resp, err := client.Get(base + pr.path)
			if err != nil {
				t.Errorf("GET %s: %v", pr.path, err)
				continue
			}
			var body bytes.Buffer
			_, _ = body.ReadFrom(resp.Body)
			resp.Body.Close()
			if resp.StatusCode != pr.wantStatus {
				t.Errorf("GET %s: status = %d, want %d", pr.path, resp.StatusCode, pr.wantStatus)
			}
			if pr.wantBody != "" && !strings.Contains(body.String(), pr.wantBody) {
				t.Errorf("GET %s: body %q does not contain %q", pr.path, body.String(), pr.wantBody)
			}
		}
		if inspect != nil {
			inspect(c)
		}
	})(seq)

	code := seq.Main(args)
	if !ready {
		t.Fatalf("server never became ready, exit code %d", code)
	}
	return code
}

func TestMain_ServeUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seq := newSequencer(&fakePlatform{}, &fakeSignals{}, WithContext(ctx))
	probes := []probe{
		{path: "/templates/anything", wantStatus: http.StatusNotFound},
		{path: "/browser-unsupported", wantStatus: http.StatusOK},
		{path: "/app.js", wantStatus: http.StatusOK, wantBody: "console.log"},
		{path: "/", wantStatus: http.StatusFound},
		{path: "/rpc/console_input", wantStatus: http.StatusUnauthorized},
		{path: "/graphics/plot.png", wantStatus: http.StatusFound},
		{path: "/docs/", wantStatus: http.StatusOK, wantBody: "docs"},
		{path: "/auth-sign-in", wantStatus: http.StatusOK},
	}
	code := serve(t, seq, []string{"--config", writeConfig(t, fixture{})}, probes, func(c *Context) {
		if c.LocalAuth == nil {
			t.Error("built-in authentication not installed")
		}
		if c.ClientLog == nil {
			t.Error("client log store not opened")
		}
		cancel()
	})
	if code != ExitSignalWait {
		t.Errorf("exit code = %d, want %d", code, ExitSignalWait)
	}
}

func TestMain_TerminationSignal(t *testing.T) {
	sig := &fakeSignals{}
	seq := newSequencer(&fakePlatform{}, sig)

	var c *Context
	code := serve(t, seq, []string{"--config", writeConfig(t, fixture{})}, nil, func(ctx *Context) {
		c = ctx
		go sig.send(syscall.SIGTERM)
	})
	if want := 128 + int(syscall.SIGTERM); code != want {
		t.Errorf("exit code = %d, want %d", code, want)
	}
	if c.Server.IsRunning() {
		t.Error("server still running after termination")
	}
}

func TestMain_ProviderSuppressesBuiltinAuth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers := auth.NewRegistry()
	if err := providers.Register(fakeProvider{}); err != nil {
		t.Fatal(err)
	}
	seq := newSequencer(&fakePlatform{}, &fakeSignals{}, WithContext(ctx), WithProviders(providers))
	probes := []probe{
		{path: "/auth-sign-in", wantStatus: http.StatusNotFound},
	}
	serve(t, seq, []string{"--config", writeConfig(t, fixture{})}, probes, func(c *Context) {
		if c.LocalAuth != nil {
			t.Error("built-in authentication installed alongside a registered provider")
		}
		if got := c.Providers.SignInURL(); got != "/sso/sign-in" {
			t.Errorf("sign-in URL = %q", got)
		}
		cancel()
	})
}

func TestMain_Offline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seq := newSequencer(&fakePlatform{}, &fakeSignals{}, WithContext(ctx))
	probes := []probe{
		{path: "/", wantStatus: http.StatusServiceUnavailable},
		{path: "/rpc/console_input", wantStatus: http.StatusServiceUnavailable},
		{path: "/browser-unsupported", wantStatus: http.StatusOK},
	}
	serve(t, seq, []string{"--config", writeConfig(t, fixture{}), "--offline"}, probes, func(c *Context) {
		if c.Guard != nil || c.LocalAuth != nil {
			t.Error("offline mode installed authentication")
		}
		cancel()
	})
}

func TestExitCode_Errors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"exit request", exitRequest(3), 3},
		{"step", fatal("bind", ExitBind, errors.New("in use")), ExitBind},
		{"wrapped step", fmt.Errorf("outer: %w", fatal("crypto", ExitCrypto, errors.New("x"))), ExitCrypto},
		{"other", errors.New("boom"), ExitUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			c := &Context{Logger: discardLogger()}
			if got := s.exitCode(c, tc.err); got != tc.want {
				t.Errorf("exitCode = %d, want %d", got, tc.want)
			}
		})
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
