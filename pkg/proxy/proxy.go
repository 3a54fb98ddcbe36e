package proxy

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"mercator-hq/workbench/pkg/config"
	"mercator-hq/workbench/pkg/security/auth"
	"mercator-hq/workbench/pkg/security/crypto"
	"mercator-hq/workbench/pkg/session"
	"mercator-hq/workbench/pkg/telemetry/tracing"
	"mercator-hq/workbench/pkg/uri"
)

// Headers added to every forwarded request.
const (
	UserHeader         = "X-Workbench-User"
	SharedSecretHeader = "X-Workbench-Shared-Secret"
)

// SharedSecretEnv passes the shared secret to launched sessions.
const SharedSecretEnv = "WORKBENCH_SHARED_SECRET"

const sharedSecretBytes = 32

// Kind is the class of a forwarded request. It selects the timeout and the
// failure format.
type Kind int

const (
	KindRPC Kind = iota
	KindEvents
	KindContent
)

func (k Kind) String() string {
	switch k {
	case KindRPC:
		return "rpc"
	case KindEvents:
		return "events"
	default:
		return "content"
	}
}

func (k Kind) usesJSONRPC() bool {
	return k == KindRPC || k == KindEvents
}

// Sessions is the session manager the proxy forwards to.
type Sessions interface {
	EnsureSession(ctx context.Context, user string) (*session.Session, error)
	SetEnv(env ...string)
	OnExit(fn func(*session.Session))
	RunVerifyInstallation(ctx context.Context) error
}

// Recorder receives round-trip outcomes.
type Recorder interface {
	RecordProxy(kind, outcome string, duration time.Duration)
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Proxy) {
		p.recorder = r
	}
}

// Proxy forwards requests to per-user sessions.
type Proxy struct {
	cfg      config.SessionConfig
	sessions Sessions
	secret   string
	proxies  *lru.Cache[string, *backend]
	logger   *slog.Logger
	recorder Recorder

	// wg tracks in-flight round trips.
	wg sync.WaitGroup
}

// backend is the cached reverse proxy for one session incarnation.
type backend struct {
	rp        *httputil.ReverseProxy
	transport *http.Transport
}

// Initialize generates the shared secret, hands it to sessions and returns
// a ready proxy.
func Initialize(cfg config.SessionConfig, sessions Sessions, opts ...Option) (*Proxy, error) {
	if sessions == nil {
		return nil, ErrNotInitialized
	}

	raw, err := crypto.RandomBytes(sharedSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate shared secret: %w", err)
	}

	size := cfg.MaxProxies
	if size < 1 {
		size = config.DefaultSessionMaxProxies
	}
	cache, err := lru.NewWithEvict[string, *backend](size, func(_ string, b *backend) {
		b.transport.CloseIdleConnections()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy cache: %w", err)
	}

	p := &Proxy{
		cfg:      cfg,
		sessions: sessions,
		secret:   hex.EncodeToString(raw),
		proxies:  cache,
		logger:   slog.Default().With("component", "proxy"),
	}
	for _, opt := range opts {
		opt(p)
	}

	sessions.SetEnv(SharedSecretEnv + "=" + p.secret)
	sessions.OnExit(func(s *session.Session) {
		p.proxies.Remove(s.Key())
	})
	return p, nil
}

// SharedSecret returns the secret sent to sessions.
func (p *Proxy) SharedSecret() string {
	return p.secret
}

// ProxyRPCRequest forwards a JSON-RPC request.
func (p *Proxy) ProxyRPCRequest(id auth.Identity, conn *uri.Connection) {
	p.forward(KindRPC, id, conn)
}

// ProxyEventsRequest forwards a long-poll events request.
func (p *Proxy) ProxyEventsRequest(id auth.Identity, conn *uri.Connection) {
	p.forward(KindEvents, id, conn)
}

// ProxyContentRequest forwards a content request (graphics, files).
func (p *Proxy) ProxyContentRequest(id auth.Identity, conn *uri.Connection) {
	p.forward(KindContent, id, conn)
}

// Handler returns the auth.Handler forwarding requests of kind.
func (p *Proxy) Handler(kind Kind) auth.Handler {
	return auth.HandlerFunc(func(id auth.Identity, conn *uri.Connection) {
		p.forward(kind, id, conn)
	})
}

// Wait blocks until in-flight round trips finish or ctx ends.
func (p *Proxy) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunVerifyInstallationSession runs the one-shot installation check of the
// session binary without going through HTTP.
func (p *Proxy) RunVerifyInstallationSession(ctx context.Context) error {
	return p.sessions.RunVerifyInstallation(ctx)
}

func (p *Proxy) forward(kind Kind, id auth.Identity, conn *uri.Connection) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.roundTrip(kind, id, conn)
	}()
}

type resultKey struct{}

// result collects the transport error reported to the ErrorHandler.
type result struct {
	err error
}

func (p *Proxy) roundTrip(kind Kind, id auth.Identity, conn *uri.Connection) {
	start := time.Now()
	req := conn.Request()
	outcome := "ok"

	defer func() {
		if rec := recover(); rec != nil {
			p.logger.ErrorContext(req.Context(), "panic in session proxy",
				"kind", kind.String(),
				"path", req.URL.Path,
				"error", rec,
				"stack", string(debug.Stack()),
			)
			conn.Abort(http.StatusInternalServerError, "Internal Server Error")
			outcome = "panic"
		}
		if p.recorder != nil {
			p.recorder.RecordProxy(kind.String(), outcome, time.Since(start))
		}
	}()

	ctx, cancel := context.WithTimeout(conn.Context(), p.timeout(kind))
	defer cancel()

	s, err := p.sessions.EnsureSession(ctx, id.User)
	if err != nil {
		outcome = p.fail(kind, conn, err)
		return
	}

	res := &result{}
	out := req.WithContext(context.WithValue(ctx, resultKey{}, res))
	p.backendFor(s).rp.ServeHTTP(conn.Response(), out)

	if res.err != nil {
		outcome = p.fail(kind, conn, res.err)
		return
	}
	conn.WriteResponse()
}

// fail completes conn for err and returns the metrics outcome.
func (p *Proxy) fail(kind Kind, conn *uri.Connection, err error) string {
	if errors.Is(err, context.Canceled) && conn.Context().Err() != nil {
		conn.Abandon()
		return "canceled"
	}

	f := classify(err)
	p.logger.WarnContext(conn.Context(), "session proxy failed",
		"kind", kind.String(),
		"path", conn.Request().URL.Path,
		"status", f.status,
		"error", err,
	)
	f.write(conn.Response(), kind)
	conn.WriteResponse()
	return f.outcome
}

func (p *Proxy) timeout(kind Kind) time.Duration {
	var d time.Duration
	switch kind {
	case KindRPC:
		d = p.cfg.RPCTimeout
	case KindEvents:
		d = p.cfg.EventsTimeout
	default:
		d = p.cfg.ContentTimeout
	}
	if d <= 0 {
		d = config.DefaultSessionContentTimeout
	}
	return d
}

func (p *Proxy) backendFor(s *session.Session) *backend {
	key := s.Key()
	if b, ok := p.proxies.Get(key); ok {
		return b
	}

	target := s.URL
	transport := &http.Transport{
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 0,
	}
	if !s.Static() {
		// The host is ignored; every connection goes to the session socket.
		target = &url.URL{Scheme: "http", Host: "session"}
		transport.DialContext = unixDialer(s.SocketPath)
	}

	user := s.User
	b := &backend{transport: transport}
	b.rp = &httputil.ReverseProxy{
		Transport: transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = pr.In.Host
			pr.Out.Header.Del(UserHeader)
			pr.Out.Header.Del(SharedSecretHeader)
			if user != "" {
				pr.Out.Header.Set(UserHeader, user)
			}
			pr.Out.Header.Set(SharedSecretHeader, p.secret)
			tracing.Inject(pr.In.Context(), pr.Out.Header)
		},
		ErrorHandler: func(_ http.ResponseWriter, r *http.Request, err error) {
			if res, ok := r.Context().Value(resultKey{}).(*result); ok {
				res.err = err
			}
		},
		ErrorLog: slog.NewLogLogger(p.logger.Handler(), slog.LevelDebug),
	}

	p.proxies.Add(key, b)
	return b
}
