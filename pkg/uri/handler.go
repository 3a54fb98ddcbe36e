package uri

import (
	"net/http"
)

// Classification tells whether a handler completes the response on return
// or owns the connection.
type Classification int

const (
	// Blocking handlers fill in a Response and return.
	Blocking Classification = iota
	// Async handlers call Connection.WriteResponse when done.
	Async
)

// String returns "blocking" or "async".
func (c Classification) String() string {
	switch c {
	case Blocking:
		return "blocking"
	case Async:
		return "async"
	default:
		return "unknown"
	}
}

// SecurityMode records how a route's handler was wrapped.
type SecurityMode int

const (
	// Unsecured handlers run without identity resolution.
	Unsecured SecurityMode = iota
	// Secure handlers require a valid identity.
	Secure
	// SecureWithOptionalAuth handlers receive an identity, possibly empty.
	SecureWithOptionalAuth
)

// String returns the mode name used in logs.
func (m SecurityMode) String() string {
	switch m {
	case Unsecured:
		return "unsecured"
	case Secure:
		return "secure"
	case SecureWithOptionalAuth:
		return "optional_auth"
	default:
		return "unknown"
	}
}

// BlockingHandler produces a response synchronously.
type BlockingHandler interface {
	ServeBlocking(req *http.Request, resp *Response)
}

// BlockingHandlerFunc adapts a function to BlockingHandler.
type BlockingHandlerFunc func(req *http.Request, resp *Response)

// ServeBlocking calls f(req, resp).
func (f BlockingHandlerFunc) ServeBlocking(req *http.Request, resp *Response) {
	f(req, resp)
}

// AsyncHandler owns a connection and completes it with WriteResponse.
type AsyncHandler interface {
	ServeAsync(conn *Connection)
}

// AsyncHandlerFunc adapts a function to AsyncHandler.
type AsyncHandlerFunc func(conn *Connection)

// ServeAsync calls f(conn).
func (f AsyncHandlerFunc) ServeAsync(conn *Connection) {
	f(conn)
}

// BlockingAdapter runs a blocking handler as an async one: it invokes the
// handler against the connection's request and response, then writes the
// response.
type BlockingAdapter struct {
	Handler BlockingHandler
}

// Adapt wraps h in a BlockingAdapter.
func Adapt(h BlockingHandler) *BlockingAdapter {
	return &BlockingAdapter{Handler: h}
}

// ServeAsync implements AsyncHandler.
func (a *BlockingAdapter) ServeAsync(conn *Connection) {
	a.Handler.ServeBlocking(conn.Request(), conn.Response())
	conn.WriteResponse()
}

// FromHTTP exposes a standard library handler as a BlockingHandler. The
// handler writes into the buffered Response.
func FromHTTP(h http.Handler) BlockingHandler {
	return BlockingHandlerFunc(func(req *http.Request, resp *Response) {
		h.ServeHTTP(resp, req)
	})
}
