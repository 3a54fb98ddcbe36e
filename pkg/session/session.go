package session

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

var (
	// ErrInvalidUser is returned for user names that cannot name a socket.
	ErrInvalidUser = errors.New("invalid session user name")

	// ErrAnonymous is returned in launch mode for a request without a user.
	// Static mode forwards anonymous requests to the fixed back end.
	ErrAnonymous = errors.New("no user to launch a session for")

	// ErrShutdown is returned by EnsureSession after Shutdown.
	ErrShutdown = errors.New("session manager is shut down")

	// ErrLaunchTimeout is returned when a launched session never came up.
	ErrLaunchTimeout = errors.New("session did not become ready")

	// ErrVerificationFailed is returned when the installation check fails.
	ErrVerificationFailed = errors.New("session installation verification failed")
)

var validUser = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]{0,63}$`)

// Session is a running back end for one user.
type Session struct {
	// User owns the session.
	User string

	// PID of the launched process; zero in static mode.
	PID int

	// SocketPath is the unix socket of a launched session.
	SocketPath string

	// URL is the back end of a static session.
	URL *url.URL

	// Started is when the session was launched or first resolved.
	Started time.Time
}

// Static reports whether the session is the shared static back end.
func (s *Session) Static() bool {
	return s.URL != nil
}

// Key identifies this incarnation of the session. A relaunched session for
// the same user has a different key.
func (s *Session) Key() string {
	if s.Static() {
		return "static:" + s.User
	}
	return s.User + "#" + strconv.Itoa(s.PID)
}

// ValidateUser checks that user can be used for a session socket name.
func ValidateUser(user string) error {
	if !validUser.MatchString(user) {
		return ErrInvalidUser
	}
	return nil
}
