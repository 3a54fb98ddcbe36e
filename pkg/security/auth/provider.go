package auth

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultSignInURL is used for redirects when no provider is registered.
const DefaultSignInURL = "/auth-sign-in"

// ErrProviderRegistered is returned when registering a second provider.
var ErrProviderRegistered = errors.New("authentication provider already registered")

// Provider is an authentication mechanism.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// SignInURL is the page unauthenticated browsers are sent to.
	SignInURL() string
}

// Registry holds the single active provider.
type Registry struct {
	mu       sync.RWMutex
	provider Provider
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs p. Providers are mutually exclusive.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.provider != nil {
		return fmt.Errorf("%w: %s (active: %s)", ErrProviderRegistered, p.Name(), r.provider.Name())
	}
	r.provider = p
	return nil
}

// IsRegistered reports whether a provider is installed.
func (r *Registry) IsRegistered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.provider != nil
}

// Provider returns the active provider, or nil.
func (r *Registry) Provider() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.provider
}

// SignInURL returns the active provider's sign-in URL or DefaultSignInURL.
func (r *Registry) SignInURL() string {
	if p := r.Provider(); p != nil {
		if u := p.SignInURL(); u != "" {
			return u
		}
	}
	return DefaultSignInURL
}
