package signals

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// reraiseEnv names the signal the helper process sends itself.
const reraiseEnv = "WORKBENCH_SIGNALS_RERAISE"

// Exit codes of the helper when it fails to die by the signal.
const (
	helperArmFailed = 90
	helperSurvived  = 91
)

// TestReraiseHelperProcess is re-executed by TestCoordinator_ReraiseEndsProcess.
// It never returns normally when the signal is delivered.
func TestReraiseHelperProcess(t *testing.T) {
	name := os.Getenv(reraiseEnv)
	if name == "" {
		t.Skip("helper process for TestCoordinator_ReraiseEndsProcess")
	}

	c := New(Hooks{}, WithRaiseGrace(10*time.Second))
	if err := c.Arm(); err != nil {
		os.Exit(helperArmFailed)
	}
	go unix.Kill(unix.Getpid(), unix.SignalNum(name))
	c.Wait(context.Background())
	os.Exit(helperSurvived)
}

func TestCoordinator_ReraiseEndsProcess(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("default signal disposition is installed on linux only")
	}

	for _, sig := range []syscall.Signal{unix.SIGINT, unix.SIGQUIT, unix.SIGTERM} {
		t.Run(unix.SignalName(sig), func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run=^TestReraiseHelperProcess$")
			cmd.Env = append(os.Environ(), reraiseEnv+"="+unix.SignalName(sig))
			// A SIGQUIT death may leave a core file behind.
			cmd.Dir = t.TempDir()

			out, err := cmd.CombinedOutput()
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				t.Fatalf("helper error = %v, want death by %s\n%s", err, unix.SignalName(sig), out)
			}
			ws, ok := exitErr.Sys().(syscall.WaitStatus)
			if !ok {
				t.Fatalf("unexpected wait status type %T", exitErr.Sys())
			}
			if !ws.Signaled() || ws.Signal() != sig {
				t.Errorf("helper signaled = %v, signal = %v, exit status = %d, want death by %s\n%s",
					ws.Signaled(), ws.Signal(), ws.ExitStatus(), unix.SignalName(sig), out)
			}
		})
	}
}
