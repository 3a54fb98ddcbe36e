package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnauthenticated is returned when a request carries no valid
	// identity.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrUnauthorized is returned when a valid identity is not permitted
	// to access the resource.
	ErrUnauthorized = errors.New("not authorized")
)

// Identity is the user resolved from the secure cookie.
type Identity struct {
	User    string
	Expires time.Time
}

// IsEmpty reports whether no user is signed in.
func (i Identity) IsEmpty() bool {
	return i.User == ""
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity bound by a Guard. It reports false if
// the context did not pass through a Guard.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
