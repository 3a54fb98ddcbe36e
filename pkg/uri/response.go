package uri

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"sync"
)

// ErrResponseWritten is returned by Response.Write once the response has
// been sent to the client.
var ErrResponseWritten = errors.New("response already written")

// Response is a buffered HTTP response. It implements http.ResponseWriter
// so standard helpers (http.ServeContent, http.SetCookie, reverse proxies)
// can fill it in. Nothing reaches the client until the owning Connection
// writes it; after that the Response is frozen.
type Response struct {
	mu     sync.Mutex
	header http.Header
	status int
	body   bytes.Buffer
	frozen bool
}

// NewResponse returns an empty response with status 200.
func NewResponse() *Response {
	return &Response{header: make(http.Header)}
}

// Header returns the response header map.
func (r *Response) Header() http.Header {
	return r.header
}

// WriteHeader sets the status code. Only the first call has effect.
func (r *Response) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen || r.status != 0 {
		return
	}
	r.status = code
}

// Write appends to the body. It fails with ErrResponseWritten once frozen.
func (r *Response) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return 0, ErrResponseWritten
	}
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

// Flush is a no-op; the body is delivered in full by the Connection.
func (r *Response) Flush() {}

// Status returns the status code, 200 if none was set.
func (r *Response) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Body returns a copy of the buffered body.
func (r *Response) Body() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	return bytes.Clone(r.body.Bytes())
}

// SetError replaces any partial content with a plain-text error.
func (r *Response) SetError(code int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return
	}
	r.resetLocked()
	r.status = code
	r.header.Set("Content-Type", "text/plain; charset=utf-8")
	r.header.Set("X-Content-Type-Options", "nosniff")
	r.body.WriteString(message)
	r.body.WriteString("\n")
}

// SetJSON replaces any partial content with a JSON body.
func (r *Response) SetJSON(code int, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return
	}
	r.resetLocked()
	r.status = code
	r.header.Set("Content-Type", "application/json")
	r.body.Write(body)
}

// Redirect replaces any partial content with a redirect to location.
func (r *Response) Redirect(location string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return
	}
	r.resetLocked()
	r.status = code
	r.header.Set("Location", location)
}

func (r *Response) resetLocked() {
	for k := range r.header {
		if k != "Set-Cookie" {
			delete(r.header, k)
		}
	}
	r.status = 0
	r.body.Reset()
}

// freeze marks the response as sent and returns its final state.
func (r *Response) freeze() (int, []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return status, r.body.Bytes()
}

// writeTo sends the frozen response to w.
func (r *Response) writeTo(w http.ResponseWriter) error {
	status, body := r.freeze()

	dst := w.Header()
	for k, v := range r.header {
		dst[k] = v
	}
	if dst.Get("Content-Length") == "" && bodyAllowed(status) {
		dst.Set("Content-Length", strconv.Itoa(len(body)))
	}

	w.WriteHeader(status)
	if !bodyAllowed(status) {
		return nil
	}
	_, err := w.Write(body)
	return err
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}
