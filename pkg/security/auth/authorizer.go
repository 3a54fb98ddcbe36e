package auth

import (
	"context"
	"fmt"
)

// Authorizer decides whether an authenticated identity may proceed.
type Authorizer interface {
	Authorize(ctx context.Context, id Identity) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, id Identity) error

// Authorize calls f(ctx, id).
func (f AuthorizerFunc) Authorize(ctx context.Context, id Identity) error {
	return f(ctx, id)
}

// AllowAll permits every authenticated identity.
type AllowAll struct{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(context.Context, Identity) error { return nil }

// AllowList permits a fixed set of users.
type AllowList struct {
	users map[string]struct{}
}

// NewAllowList returns an authorizer permitting only users.
func NewAllowList(users ...string) *AllowList {
	l := &AllowList{users: make(map[string]struct{}, len(users))}
	for _, u := range users {
		l.users[u] = struct{}{}
	}
	return l
}

// Authorize implements Authorizer.
func (l *AllowList) Authorize(_ context.Context, id Identity) error {
	if _, ok := l.users[id.User]; !ok {
		return fmt.Errorf("%w: user %q is not in the allowed users list", ErrUnauthorized, id.User)
	}
	return nil
}

// NewAuthorizer returns AllowAll for an empty list, else an AllowList.
func NewAuthorizer(allowed []string) Authorizer {
	if len(allowed) == 0 {
		return AllowAll{}
	}
	return NewAllowList(allowed...)
}
