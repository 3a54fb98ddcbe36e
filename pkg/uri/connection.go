package uri

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
)

// Connection is one accepted request awaiting its response. The response is
// written to the client exactly once, by whichever of WriteResponse, Abort
// or Abandon runs first. Completing the connection cancels its context.
type Connection struct {
	req    atomic.Pointer[http.Request]
	resp   *Response
	w      http.ResponseWriter
	cancel context.CancelFunc

	once    sync.Once
	done    chan struct{}
	written atomic.Bool
	status  atomic.Int32
}

// NewConnection creates a connection that will write to w.
func NewConnection(w http.ResponseWriter, req *http.Request) *Connection {
	ctx, cancel := context.WithCancel(req.Context())
	c := &Connection{
		resp:   NewResponse(),
		w:      w,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.req.Store(req.WithContext(ctx))
	return c
}

// Request returns the request.
func (c *Connection) Request() *http.Request {
	return c.req.Load()
}

// Response returns the buffered response.
func (c *Connection) Response() *Response {
	return c.resp
}

// Context returns the request context. It is cancelled when the client
// goes away or the connection completes.
func (c *Connection) Context() context.Context {
	return c.Request().Context()
}

// BindContext replaces the request context, for wrappers that attach
// values (the resolved identity) before invoking the next handler. It must
// be called by the goroutine that currently owns the connection.
func (c *Connection) BindContext(ctx context.Context) {
	c.req.Store(c.Request().WithContext(ctx))
}

// WriteResponse sends the buffered response to the client. Only the first
// completion of the connection has effect; later calls are logged and
// ignored.
func (c *Connection) WriteResponse() {
	if !c.complete(func() {
		if err := c.resp.writeTo(c.w); err != nil {
			slog.Debug("failed to write response",
				"path", c.Request().URL.Path,
				"error", err,
			)
		}
		c.status.Store(int32(c.resp.Status()))
		c.written.Store(true)
	}) {
		slog.Debug("response already written, ignoring",
			"path", c.Request().URL.Path,
		)
	}
}

// Abort completes the connection with an error status, discarding any
// partial response. It may run while the handler still fills in the
// Response, so the error is written straight to the client and the
// Response is only frozen. It returns false if the connection was already
// complete.
func (c *Connection) Abort(code int, message string) bool {
	return c.complete(func() {
		c.cancel()
		c.resp.freeze()

		body := message + "\n"
		h := c.w.Header()
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Length", strconv.Itoa(len(body)))
		c.w.WriteHeader(code)
		if _, err := io.WriteString(c.w, body); err != nil {
			slog.Debug("failed to write abort response",
				"path", c.Request().URL.Path,
				"error", err,
			)
		}
		c.status.Store(int32(code))
		c.written.Store(true)
	})
}

// Abandon completes the connection without writing anything. It is used
// when the client has disconnected. It returns false if the connection was
// already complete.
func (c *Connection) Abandon() bool {
	return c.complete(func() {
		c.resp.freeze()
	})
}

func (c *Connection) complete(fn func()) bool {
	first := false
	c.once.Do(func() {
		first = true
		defer close(c.done)
		defer c.cancel()
		fn()
	})
	return first
}

// Done is closed once the connection is complete.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Written reports whether a response reached the client.
func (c *Connection) Written() bool {
	return c.written.Load()
}

// Status returns the status code sent to the client, 0 if none was sent.
func (c *Connection) Status() int {
	return int(c.status.Load())
}
