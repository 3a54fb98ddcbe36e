package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"mercator-hq/workbench/pkg/jsonrpc"
	"mercator-hq/workbench/pkg/security/cookie"
	"mercator-hq/workbench/pkg/telemetry/logging"
	"mercator-hq/workbench/pkg/uri"
)

// Default identity lifetimes.
const (
	DefaultLifetime        = 24 * time.Hour
	DefaultPersistLifetime = 30 * 24 * time.Hour
)

// Handler is an async handler that receives the resolved identity.
type Handler interface {
	ServeAuthenticated(id Identity, conn *uri.Connection)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(id Identity, conn *uri.Connection)

// ServeAuthenticated calls f(id, conn).
func (f HandlerFunc) ServeAuthenticated(id Identity, conn *uri.Connection) {
	f(id, conn)
}

// IgnoreIdentity binds out the identity for an async handler that does not
// use it. The identity remains available through the request context.
func IgnoreIdentity(h uri.AsyncHandler) Handler {
	return HandlerFunc(func(_ Identity, conn *uri.Connection) {
		h.ServeAsync(conn)
	})
}

// Recorder receives authentication outcomes.
type Recorder interface {
	RecordAuth(flavor, outcome string)
}

type flavor int

const (
	flavorHTTP flavor = iota
	flavorJSONRPC
	flavorUpload
)

func (f flavor) String() string {
	switch f {
	case flavorJSONRPC:
		return "jsonrpc"
	case flavorUpload:
		return "upload"
	default:
		return "http"
	}
}

// Option configures a Guard.
type Option func(*Guard)

// WithAuthorizer sets the authorizer. Default: AllowAll.
func WithAuthorizer(a Authorizer) Option {
	return func(g *Guard) {
		g.authorizer = a
	}
}

// WithLifetimes sets the identity lifetimes for normal and persistent
// sign-ins.
func WithLifetimes(lifetime, persist time.Duration) Option {
	return func(g *Guard) {
		if lifetime > 0 {
			g.lifetime = lifetime
		}
		if persist > 0 {
			g.persistLifetime = persist
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Guard) {
		g.recorder = r
	}
}

// Guard wraps handlers with identity resolution and authorization.
type Guard struct {
	codec           *cookie.Codec
	providers       *Registry
	authorizer      Authorizer
	lifetime        time.Duration
	persistLifetime time.Duration
	logger          *slog.Logger
	recorder        Recorder
	now             func() time.Time
}

// NewGuard returns a guard decoding identities with codec and redirecting
// to the sign-in page of the provider registered in providers.
func NewGuard(codec *cookie.Codec, providers *Registry, opts ...Option) *Guard {
	g := &Guard{
		codec:           codec,
		providers:       providers,
		authorizer:      AllowAll{},
		lifetime:        DefaultLifetime,
		persistLifetime: DefaultPersistLifetime,
		logger:          slog.Default().With("component", "auth"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Providers returns the provider registry.
func (g *Guard) Providers() *Registry {
	return g.providers
}

// Authenticate resolves and authorizes the identity of r. The error wraps
// ErrUnauthenticated or ErrUnauthorized.
func (g *Guard) Authenticate(r *http.Request) (Identity, error) {
	user, expires, err := g.codec.Read(r, cookie.UserIDCookie)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if user == "" {
		return Identity{}, fmt.Errorf("%w: empty user", ErrUnauthenticated)
	}

	id := Identity{User: user, Expires: expires}
	if err := g.authorizer.Authorize(r.Context(), id); err != nil {
		if !errors.Is(err, ErrUnauthorized) {
			err = fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return id, err
	}
	return id, nil
}

// Authorize checks user against the guard's authorizer. Providers call it
// before issuing an identity cookie.
func (g *Guard) Authorize(ctx context.Context, user string) error {
	if err := g.authorizer.Authorize(ctx, Identity{User: user}); err != nil {
		if !errors.Is(err, ErrUnauthorized) {
			err = fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return err
	}
	return nil
}

// SecureAsyncHTTPHandler wraps h for browser content requests. With
// optionalAuth, requests without a valid identity reach h with an empty
// identity.
func (g *Guard) SecureAsyncHTTPHandler(h Handler, optionalAuth bool) uri.AsyncHandler {
	return g.secureAsync(h, flavorHTTP, optionalAuth)
}

// SecureAsyncJSONRPCHandler wraps h for JSON-RPC requests.
func (g *Guard) SecureAsyncJSONRPCHandler(h Handler) uri.AsyncHandler {
	return g.secureAsync(h, flavorJSONRPC, false)
}

// SecureAsyncUploadHandler wraps h for file uploads.
func (g *Guard) SecureAsyncUploadHandler(h Handler) uri.AsyncHandler {
	return g.secureAsync(h, flavorUpload, false)
}

// SecureHTTPHandler wraps a blocking handler for browser requests.
func (g *Guard) SecureHTTPHandler(h uri.BlockingHandler) uri.BlockingHandler {
	return g.secureBlocking(h, flavorHTTP)
}

// SecureJSONRPCHandler wraps a blocking JSON-RPC handler.
func (g *Guard) SecureJSONRPCHandler(h uri.BlockingHandler) uri.BlockingHandler {
	return g.secureBlocking(h, flavorJSONRPC)
}

func (g *Guard) secureAsync(h Handler, fl flavor, optional bool) uri.AsyncHandler {
	return uri.AsyncHandlerFunc(func(conn *uri.Connection) {
		req := conn.Request()

		id, err := g.resolve(req, fl, optional)
		if err != nil {
			g.writeFailure(req, conn.Response(), fl, err)
			conn.WriteResponse()
			return
		}
		conn.BindContext(bindIdentity(req, id).Context())

		defer func() {
			if rec := recover(); rec != nil {
				g.logPanic(req, rec)
				g.writeInternalError(conn.Response(), fl)
				conn.WriteResponse()
			}
		}()
		h.ServeAuthenticated(id, conn)
	})
}

func (g *Guard) secureBlocking(h uri.BlockingHandler, fl flavor) uri.BlockingHandler {
	return uri.BlockingHandlerFunc(func(req *http.Request, resp *uri.Response) {
		id, err := g.resolve(req, fl, false)
		if err != nil {
			g.writeFailure(req, resp, fl, err)
			return
		}
		req = bindIdentity(req, id)

		defer func() {
			if rec := recover(); rec != nil {
				g.logPanic(req, rec)
				g.writeInternalError(resp, fl)
			}
		}()
		h.ServeBlocking(req, resp)
	})
}

// resolve authenticates req. In optional mode an unauthenticated request
// resolves to the empty identity.
func (g *Guard) resolve(req *http.Request, fl flavor, optional bool) (Identity, error) {
	id, err := g.Authenticate(req)
	switch {
	case err == nil:
		g.record(fl, "authenticated")
		return id, nil
	case optional && errors.Is(err, ErrUnauthenticated):
		g.record(fl, "anonymous")
		return Identity{}, nil
	case errors.Is(err, ErrUnauthorized):
		g.record(fl, "forbidden")
		g.logger.WarnContext(req.Context(), "identity not authorized",
			"user", id.User,
			"path", req.URL.Path,
			"error", err,
		)
		return id, err
	default:
		g.record(fl, "unauthenticated")
		g.logger.DebugContext(req.Context(), "request not authenticated",
			"path", req.URL.Path,
			"flavor", fl.String(),
			"error", err,
		)
		return Identity{}, err
	}
}

func bindIdentity(req *http.Request, id Identity) *http.Request {
	ctx := WithIdentity(req.Context(), id)
	if !id.IsEmpty() {
		ctx = logging.WithUser(ctx, id.User)
	}
	return req.WithContext(ctx)
}

// writeFailure renders an authentication or authorization failure.
func (g *Guard) writeFailure(req *http.Request, resp *uri.Response, fl flavor, err error) {
	if errors.Is(err, ErrUnauthorized) {
		switch fl {
		case flavorJSONRPC:
			resp.SetJSON(http.StatusForbidden, jsonrpc.ErrorBody(jsonrpc.Forbidden, "forbidden"))
		default:
			resp.SetError(http.StatusForbidden, "Forbidden")
		}
		return
	}

	switch fl {
	case flavorJSONRPC:
		resp.SetJSON(http.StatusUnauthorized, jsonrpc.ErrorBody(jsonrpc.Unauthorized, "unauthorized"))
	case flavorUpload:
		resp.SetError(http.StatusUnauthorized, "Unauthorized")
	default:
		if req.Method == http.MethodGet || req.Method == http.MethodHead {
			resp.Redirect(g.signInLocation(req), http.StatusFound)
			return
		}
		resp.SetError(http.StatusUnauthorized, "Unauthorized")
	}
}

func (g *Guard) writeInternalError(resp *uri.Response, fl flavor) {
	if fl == flavorJSONRPC {
		resp.SetJSON(http.StatusInternalServerError, jsonrpc.ErrorBody(jsonrpc.InternalError, "internal error"))
		return
	}
	resp.SetError(http.StatusInternalServerError, "Internal Server Error")
}

func (g *Guard) logPanic(req *http.Request, rec any) {
	g.logger.ErrorContext(req.Context(), "panic in secure handler",
		"path", req.URL.Path,
		"error", rec,
		"stack", string(debug.Stack()),
	)
}

func (g *Guard) signInLocation(req *http.Request) string {
	return g.providers.SignInURL() + "?appUri=" + url.QueryEscape(req.URL.RequestURI())
}

func (g *Guard) record(fl flavor, outcome string) {
	if g.recorder != nil {
		g.recorder.RecordAuth(fl.String(), outcome)
	}
}

// MainPageFilter lets a request for the application shell through only
// with a valid identity. Otherwise it fills in resp (redirect to sign-in,
// or 403) and returns false.
func (g *Guard) MainPageFilter(req *http.Request, resp *uri.Response) bool {
	if _, err := g.resolve(req, flavorHTTP, false); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			g.writeFailure(req, resp, flavorHTTP, err)
			return false
		}
		resp.Redirect(g.signInLocation(req), http.StatusFound)
		return false
	}
	return true
}

// SignIn sets the identity cookie for user on w.
func (g *Guard) SignIn(w http.ResponseWriter, user string, persist bool) error {
	lifetime := g.lifetime
	if persist {
		lifetime = g.persistLifetime
	}
	if err := g.codec.Set(w, cookie.UserIDCookie, user, g.now().Add(lifetime), persist); err != nil {
		return fmt.Errorf("failed to set identity cookie: %w", err)
	}
	g.logger.Info("user signed in", "user", user, "persist", persist)
	return nil
}

// SignOut clears the identity cookie.
func (g *Guard) SignOut(w http.ResponseWriter) {
	g.codec.Remove(w, cookie.UserIDCookie)
}
