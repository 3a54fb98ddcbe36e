package uri

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

func newTestConnection(method, target string) (*Connection, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return NewConnection(rec, httptest.NewRequest(method, target, nil)), rec
}

func TestConnection_WriteResponseOnce(t *testing.T) {
	conn, rec := newTestConnection(http.MethodGet, "/rpc/x")

	conn.Response().Header().Set("Content-Type", "application/json")
	conn.Response().WriteHeader(http.StatusAccepted)
	conn.Response().Write([]byte(`{"ok":true}`))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.WriteResponse()
		}()
	}
	wg.Wait()

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q, written more than once or wrong", rec.Body.String())
	}
	if rec.Header().Get("Content-Length") != "11" {
		t.Errorf("Content-Length = %q, want 11", rec.Header().Get("Content-Length"))
	}
	if !conn.Written() || conn.Status() != http.StatusAccepted {
		t.Errorf("Written() = %v, Status() = %d", conn.Written(), conn.Status())
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done() not closed after WriteResponse")
	}
}

func TestConnection_WriteAfterFreeze(t *testing.T) {
	conn, rec := newTestConnection(http.MethodGet, "/")
	conn.Response().Write([]byte("first"))
	conn.WriteResponse()

	if _, err := conn.Response().Write([]byte("late")); err != ErrResponseWritten {
		t.Errorf("Write() after flush error = %v, want ErrResponseWritten", err)
	}
	if rec.Body.String() != "first" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestConnection_Abort(t *testing.T) {
	conn, rec := newTestConnection(http.MethodPost, "/rpc/slow")
	conn.Response().Write([]byte("partial"))

	if !conn.Abort(http.StatusGatewayTimeout, "request timed out") {
		t.Fatal("Abort() = false on fresh connection")
	}
	conn.WriteResponse()

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
	if rec.Body.String() != "request timed out\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if conn.Abort(http.StatusInternalServerError, "again") {
		t.Error("second Abort() = true")
	}
}

func TestConnection_AbortWhileHandlerWrites(t *testing.T) {
	conn, rec := newTestConnection(http.MethodGet, "/events/get")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for i := 0; conn.Context().Err() == nil; i++ {
			conn.Response().Header().Set("X-Backend", strconv.Itoa(i))
			conn.Response().Write([]byte("chunk"))
		}
	}()

	time.Sleep(5 * time.Millisecond)
	if !conn.Abort(http.StatusGatewayTimeout, "Gateway Timeout") {
		t.Fatal("Abort() = false on fresh connection")
	}

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not observe the cancelled context")
	}
	if rec.Code != http.StatusGatewayTimeout || rec.Body.String() != "Gateway Timeout\n" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Backend") != "" {
		t.Error("partial handler header reached the client")
	}
	if _, err := conn.Response().Write([]byte("late")); err != ErrResponseWritten {
		t.Errorf("Write() after Abort error = %v, want ErrResponseWritten", err)
	}
}

func TestConnection_CompletionCancelsContext(t *testing.T) {
	for name, complete := range map[string]func(*Connection){
		"write":   func(c *Connection) { c.WriteResponse() },
		"abort":   func(c *Connection) { c.Abort(http.StatusServiceUnavailable, "unavailable") },
		"abandon": func(c *Connection) { c.Abandon() },
	} {
		t.Run(name, func(t *testing.T) {
			conn, _ := newTestConnection(http.MethodGet, "/")
			conn.BindContext(context.WithValue(conn.Context(), ctxKey{}, "bound"))
			if conn.Context().Err() != nil {
				t.Fatal("context cancelled before completion")
			}
			complete(conn)
			if conn.Context().Err() == nil {
				t.Error("context still live after completion")
			}
		})
	}
}

func TestConnection_Abandon(t *testing.T) {
	conn, rec := newTestConnection(http.MethodGet, "/events")

	if !conn.Abandon() {
		t.Fatal("Abandon() = false")
	}
	conn.Response().Write([]byte("ignored"))
	conn.WriteResponse()

	if conn.Written() {
		t.Error("Written() = true after Abandon")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("abandoned connection wrote %q", rec.Body.String())
	}
}

func TestConnection_AsyncCompletion(t *testing.T) {
	conn, rec := newTestConnection(http.MethodGet, "/events/get")

	handler := AsyncHandlerFunc(func(c *Connection) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			c.Response().Write([]byte("event"))
			c.WriteResponse()
		}()
	})
	handler.ServeAsync(conn)

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("async handler never completed the connection")
	}
	if rec.Body.String() != "event" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestConnection_Context(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	conn := NewConnection(httptest.NewRecorder(), req)

	cancel()
	select {
	case <-conn.Context().Done():
	default:
		t.Error("connection context not cancelled with the request")
	}
}

func TestBlockingAdapter(t *testing.T) {
	calls := 0
	adapter := Adapt(BlockingHandlerFunc(func(req *http.Request, resp *Response) {
		calls++
		resp.WriteHeader(http.StatusCreated)
		resp.Write([]byte(req.URL.Path))
	}))

	conn, rec := newTestConnection(http.MethodGet, "/docs/a.html")
	adapter.ServeAsync(conn)

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if rec.Code != http.StatusCreated || rec.Body.String() != "/docs/a.html" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRoute_InvokeBlocking(t *testing.T) {
	route := NewBlockingRoute("/", FromHTTP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	})))

	conn, rec := newTestConnection(http.MethodGet, "/x")
	route.Invoke(conn)

	if !conn.Written() {
		t.Fatal("blocking route did not complete the connection")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

func TestResponse_Helpers(t *testing.T) {
	resp := NewResponse()
	if resp.Status() != http.StatusOK {
		t.Errorf("default Status() = %d", resp.Status())
	}

	http.SetCookie(resp, &http.Cookie{Name: "user-id", Value: "x"})
	resp.Header().Set("X-Custom", "1")
	resp.Write([]byte("partial"))

	resp.Redirect("/auth-sign-in", http.StatusFound)
	if resp.Status() != http.StatusFound {
		t.Errorf("Status() = %d, want 302", resp.Status())
	}
	if len(resp.Body()) != 0 {
		t.Errorf("Redirect() kept body %q", resp.Body())
	}
	if resp.Header().Get("X-Custom") != "" {
		t.Error("Redirect() kept unrelated header")
	}
	if resp.Header().Get("Set-Cookie") == "" {
		t.Error("Redirect() dropped Set-Cookie")
	}

	resp.SetJSON(http.StatusUnauthorized, []byte(`{}`))
	if resp.Header().Get("Content-Type") != "application/json" || string(resp.Body()) != "{}" {
		t.Errorf("SetJSON() = %q %q", resp.Header().Get("Content-Type"), resp.Body())
	}
}

func TestResponse_NoBodyStatus(t *testing.T) {
	conn, rec := newTestConnection(http.MethodGet, "/")
	conn.Response().WriteHeader(http.StatusNotModified)
	conn.WriteResponse()

	if rec.Code != http.StatusNotModified || rec.Body.Len() != 0 {
		t.Errorf("got %d with %d body bytes", rec.Code, rec.Body.Len())
	}
}

type ctxKey struct{}

func TestConnection_BindContext(t *testing.T) {
	conn, _ := newTestConnection(http.MethodGet, "/")
	conn.BindContext(context.WithValue(conn.Context(), ctxKey{}, "bound"))

	if got := conn.Request().Context().Value(ctxKey{}); got != "bound" {
		t.Errorf("bound value = %v", got)
	}
	if conn.Context().Value(ctxKey{}) != "bound" {
		t.Error("Context() does not reflect BindContext")
	}
}
