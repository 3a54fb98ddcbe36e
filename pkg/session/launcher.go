package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

// LaunchSpec describes one session process.
type LaunchSpec struct {
	User       string
	SocketPath string
	Env        []string
}

// Launcher starts session processes. Launch returns once the process has
// started; the Manager waits for readiness and reaps it.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (pid int, err error)
}

// ExecLauncher runs the session command as a child process.
type ExecLauncher struct {
	Command string
	Args    []string

	// SwitchUser runs the child as the session user. It requires root.
	SwitchUser bool

	// Privileged, when set, wraps process creation. It restores privileges
	// that were temporarily dropped.
	Privileged func(fn func() error) error
}

// Launch implements Launcher.
func (l *ExecLauncher) Launch(_ context.Context, spec LaunchSpec) (int, error) {
	args := append([]string{
		"--user=" + spec.User,
		"--socket=" + spec.SocketPath,
	}, l.Args...)

	// The session outlives the request that launched it, so it is not tied
	// to the launch context.
	cmd := exec.Command(l.Command, args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Dir = "/"
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if l.SwitchUser {
		cred, home, err := lookupCredential(spec.User)
		if err != nil {
			return 0, err
		}
		cmd.SysProcAttr.Credential = cred
		cmd.Dir = home
		cmd.Env = append(cmd.Env, "HOME="+home, "USER="+spec.User, "LOGNAME="+spec.User)
	}

	start := cmd.Start
	if l.Privileged != nil {
		start = func() error { return l.Privileged(cmd.Start) }
	}
	if err := start(); err != nil {
		return 0, fmt.Errorf("failed to start session for %s: %w", spec.User, err)
	}
	pid := cmd.Process.Pid
	// The Manager reaps with wait4; release the os.Process handle.
	_ = cmd.Process.Release()
	return pid, nil
}

func lookupCredential(name string) (*syscall.Credential, string, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up session user: %w", err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, "", fmt.Errorf("invalid uid %q for %s", u.Uid, name)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, "", fmt.Errorf("invalid gid %q for %s", u.Gid, name)
	}

	var groups []uint32
	if ids, err := u.GroupIds(); err == nil {
		for _, id := range ids {
			if g, err := strconv.ParseUint(id, 10, 32); err == nil {
				groups = append(groups, uint32(g))
			}
		}
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid), Groups: groups}, u.HomeDir, nil
}
