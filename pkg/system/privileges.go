package system

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrNotRoot is returned when an operation needs root privileges.
var ErrNotRoot = errors.New("operation requires root privileges")

// Privileges records a temporary privilege drop. Root stays the saved user
// id so privileges can be restored for short sections.
type Privileges struct {
	User string
	UID  int
	GID  int

	mu sync.Mutex
}

// TemporarilyDropPriv switches the effective user and group to name,
// keeping root as the saved ids.
func TemporarilyDropPriv(name string) (*Privileges, error) {
	if !RealUserIsRoot() {
		return nil, ErrNotRoot
	}

	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up server user %q: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("invalid uid %q for %s", u.Uid, name)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("invalid gid %q for %s", u.Gid, name)
	}

	p := &Privileges{User: name, UID: uid, GID: gid}
	if err := p.drop(); err != nil {
		return nil, err
	}
	return p, nil
}

// drop sets the effective group before the user; once the effective user
// is not root the group can no longer change.
func (p *Privileges) drop() error {
	if err := unix.Setresgid(-1, p.GID, -1); err != nil {
		return fmt.Errorf("failed to set effective group %d: %w", p.GID, err)
	}
	if err := unix.Setresuid(-1, p.UID, -1); err != nil {
		return fmt.Errorf("failed to set effective user %d: %w", p.UID, err)
	}
	return nil
}

func (p *Privileges) restore() error {
	if err := unix.Setresuid(-1, 0, -1); err != nil {
		return fmt.Errorf("failed to restore root user: %w", err)
	}
	if err := unix.Setresgid(-1, 0, -1); err != nil {
		return fmt.Errorf("failed to restore root group: %w", err)
	}
	return nil
}

// WithRestoredPriv runs fn with root privileges, then drops them again.
// Calls are serialized.
func (p *Privileges) WithRestoredPriv(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.restore(); err != nil {
		return err
	}
	fnErr := fn()
	if err := p.drop(); err != nil {
		return errors.Join(fnErr, err)
	}
	return fnErr
}
