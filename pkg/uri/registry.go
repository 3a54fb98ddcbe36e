package uri

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrDuplicatePrefix is returned when a prefix is registered twice.
	ErrDuplicatePrefix = errors.New("uri prefix already registered")

	// ErrInvalidPrefix is returned for an empty prefix.
	ErrInvalidPrefix = errors.New("uri prefix must not be empty")

	// ErrNilHandler is returned for a route without a handler.
	ErrNilHandler = errors.New("route has no handler")

	// ErrRegistrySealed is returned when adding routes after the server started.
	ErrRegistrySealed = errors.New("uri registry is sealed")

	// ErrNoRoute is returned by Match when nothing matches and no default is set.
	ErrNoRoute = errors.New("no route matches request")
)

// Route binds a URI prefix to a handler variant.
type Route struct {
	Prefix   string
	Class    Classification
	Security SecurityMode

	blocking BlockingHandler
	async    AsyncHandler
}

// NewBlockingRoute returns a route that runs h and writes its response.
func NewBlockingRoute(prefix string, h BlockingHandler) Route {
	return Route{Prefix: prefix, Class: Blocking, blocking: h}
}

// NewAsyncRoute returns a route that hands the connection to h.
func NewAsyncRoute(prefix string, h AsyncHandler) Route {
	return Route{Prefix: prefix, Class: Async, async: h}
}

// WithSecurity returns a copy of r annotated with mode.
func (r Route) WithSecurity(mode SecurityMode) Route {
	r.Security = mode
	return r
}

// Invoke dispatches conn to the route's handler. Blocking handlers are run
// through a BlockingAdapter so the connection is always completed.
func (r Route) Invoke(conn *Connection) {
	switch r.Class {
	case Blocking:
		Adapt(r.blocking).ServeAsync(conn)
	case Async:
		r.async.ServeAsync(conn)
	}
}

// Name returns the prefix, or "default" for the catch-all route.
func (r Route) Name() string {
	if r.Prefix == "" {
		return "default"
	}
	return r.Prefix
}

func (r Route) valid() bool {
	switch r.Class {
	case Blocking:
		return r.blocking != nil
	case Async:
		return r.async != nil
	}
	return false
}

// Registry maps URI prefixes to routes. It is safe for concurrent use; once
// sealed it rejects every modification.
type Registry struct {
	mu       sync.RWMutex
	routes   []Route // longest prefix first
	prefixes map[string]bool
	def      *Route
	sealed   atomic.Bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{prefixes: make(map[string]bool)}
}

// Add registers route under its prefix. A failed Add leaves the registry
// unchanged.
func (reg *Registry) Add(route Route) error {
	if route.Prefix == "" {
		return ErrInvalidPrefix
	}
	if !route.valid() {
		return fmt.Errorf("%w: %s", ErrNilHandler, route.Prefix)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.sealed.Load() {
		return ErrRegistrySealed
	}
	if reg.prefixes[route.Prefix] {
		return fmt.Errorf("%w: %s", ErrDuplicatePrefix, route.Prefix)
	}

	reg.prefixes[route.Prefix] = true
	reg.routes = append(reg.routes, route)
	sort.SliceStable(reg.routes, func(i, j int) bool {
		return len(reg.routes[i].Prefix) > len(reg.routes[j].Prefix)
	})
	return nil
}

// SetDefault installs the catch-all route used when no prefix matches.
// The route's prefix is ignored.
func (reg *Registry) SetDefault(route Route) error {
	route.Prefix = ""
	if !route.valid() {
		return fmt.Errorf("%w: default", ErrNilHandler)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.sealed.Load() {
		return ErrRegistrySealed
	}
	reg.def = &route
	return nil
}

// Match returns the route whose prefix is the longest registered prefix of
// path, else the default route, else ErrNoRoute. Prefixes are compared as
// plain strings, so "/rpc" matches "/rpcfoo" as well as "/rpc/foo".
func (reg *Registry) Match(path string) (Route, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	for _, r := range reg.routes {
		if len(r.Prefix) <= len(path) && path[:len(r.Prefix)] == r.Prefix {
			return r, nil
		}
	}
	if reg.def != nil {
		return *reg.def, nil
	}
	return Route{}, ErrNoRoute
}

// Seal makes the registry read-only.
func (reg *Registry) Seal() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (reg *Registry) Sealed() bool {
	return reg.sealed.Load()
}

// Routes returns the registered routes, longest prefix first, excluding the
// default route.
func (reg *Registry) Routes() []Route {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]Route, len(reg.routes))
	copy(out, reg.routes)
	return out
}

// HasDefault reports whether a default route is installed.
func (reg *Registry) HasDefault() bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return reg.def != nil
}
