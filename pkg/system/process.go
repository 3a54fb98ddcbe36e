package system

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// DaemonEnv marks the re-executed daemon process.
const DaemonEnv = "WORKBENCH_DAEMONIZED"

// IgnoreSignal sets the disposition of sig to ignore.
func IgnoreSignal(sig os.Signal) {
	signal.Ignore(sig)
}

// IgnoreTerminalSignals ignores the job-control and hangup signals a
// detached server must not stop or die on.
func IgnoreTerminalSignals() {
	signal.Ignore(unix.SIGTSTP, unix.SIGTTOU, unix.SIGTTIN, unix.SIGHUP)
}

// Daemonize detaches the server from its controlling terminal. A Go process
// cannot fork, so the binary is re-executed in a new session with its
// standard streams on /dev/null. In the original process Daemonize returns
// detached=false and the caller exits; in the re-executed one it returns
// detached=true.
func Daemonize() (detached bool, err error) {
	if os.Getenv(DaemonEnv) == "1" {
		os.Unsetenv(DaemonEnv)
		return true, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("failed to locate executable: %w", err)
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), DaemonEnv+"=1")
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devNull, devNull, devNull
	cmd.Dir = "/"
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to start daemon process: %w", err)
	}
	return false, cmd.Process.Release()
}

// SetUmask sets the file creation mask and returns the previous one.
func SetUmask(mask int) int {
	return unix.Umask(mask)
}

// RealUserIsRoot reports whether the real user id is 0.
func RealUserIsRoot() bool {
	return unix.Getuid() == 0
}

// SetFileLimit sets both the soft and hard open-file limits to n.
func SetFileLimit(n uint64) error {
	lim := unix.Rlimit{Cur: n, Max: n}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return fmt.Errorf("failed to set open file limit to %d: %w", n, err)
	}
	return nil
}

// FileLimit returns the current soft and hard open-file limits.
func FileLimit() (soft, hard uint64, err error) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, 0, err
	}
	return lim.Cur, lim.Max, nil
}

// ChangeWorkingDir changes the working directory to dir.
func ChangeWorkingDir(dir string) error {
	if err := os.Chdir(dir); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return fmt.Errorf("failed to change working directory: %w", pathErr)
		}
		return fmt.Errorf("failed to change working directory to %s: %w", dir, err)
	}
	return nil
}
