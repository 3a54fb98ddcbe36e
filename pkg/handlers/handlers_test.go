package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/workbench/pkg/clientlog"
	"mercator-hq/workbench/pkg/clientlog/storage"
	"mercator-hq/workbench/pkg/security/auth"
	"mercator-hq/workbench/pkg/uri"
)

func serve(h uri.BlockingHandler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	conn := uri.NewConnection(rec, req)
	uri.Adapt(h).ServeAsync(conn)
	return rec
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func docRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "www")
	writeFile(t, filepath.Join(root, "index.html"), "<html>shell</html>")
	writeFile(t, filepath.Join(root, "js", "app.js"), "console.log(1)")
	writeFile(t, filepath.Join(root, "docs", "index.html"), "docs index")
	writeFile(t, filepath.Join(root, "docs", "guide.txt"), "guide")
	writeFile(t, filepath.Join(dir, "secret.txt"), "secret")
	if err := os.Symlink(filepath.Join(dir, "secret.txt"), filepath.Join(root, "escape.txt")); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestFileHandler(t *testing.T) {
	root := docRoot(t)
	h := NewFileHandler(root)

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{"root index", http.MethodGet, "/", http.StatusOK, "<html>shell</html>"},
		{"asset", http.MethodGet, "/js/app.js", http.StatusOK, "console.log(1)"},
		{"nested index", http.MethodGet, "/docs/", http.StatusOK, "docs index"},
		{"dir redirect", http.MethodGet, "/docs", http.StatusMovedPermanently, ""},
		{"missing", http.MethodGet, "/nope.js", http.StatusNotFound, "Not found"},
		{"traversal", http.MethodGet, "/js/../../secret.txt", http.StatusNotFound, "Not found"},
		{"encoded backslash", http.MethodGet, "/js\\..\\index.html", http.StatusNotFound, "Not found"},
		{"symlink escape", http.MethodGet, "/escape.txt", http.StatusNotFound, "Not found"},
		{"post", http.MethodPost, "/js/app.js", http.StatusMethodNotAllowed, "Method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			req.URL.Path = tt.path
			rec := serve(h, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if strings.Contains(rec.Body.String(), "secret") {
				t.Error("served a file outside the root")
			}
		})
	}
}

func TestFileHandler_Prefix(t *testing.T) {
	root := docRoot(t)
	h := NewFileHandler(filepath.Join(root, "docs"), WithPrefix("/docs"))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/docs/guide.txt", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "guide" {
		t.Errorf("GET /docs/guide.txt = %d %q", rec.Code, rec.Body.String())
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/other/guide.txt", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET outside prefix = %d, want 404", rec.Code)
	}
}

func TestFileHandler_MainPageFilter(t *testing.T) {
	root := docRoot(t)
	var filtered []string
	h := NewFileHandler(root, WithMainPageFilter(func(req *http.Request, resp *uri.Response) bool {
		filtered = append(filtered, req.URL.Path)
		resp.Redirect("/auth-sign-in", http.StatusFound)
		return false
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/auth-sign-in" {
		t.Errorf("GET / = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	if rec.Code != http.StatusFound {
		t.Errorf("GET /index.html = %d, want 302", rec.Code)
	}
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/js/app.js", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET asset = %d, want 200", rec.Code)
	}
	if len(filtered) != 2 {
		t.Errorf("filter ran for %v, want only the shell", filtered)
	}
}

func TestChain(t *testing.T) {
	var ran []string
	pass := func(name string) Filter {
		return func(*http.Request, *uri.Response) bool { ran = append(ran, name); return true }
	}
	stop := func(*http.Request, *uri.Response) bool { ran = append(ran, "stop"); return false }

	ok := Chain(pass("a"), nil, stop, pass("b"))(httptest.NewRequest(http.MethodGet, "/", nil), uri.NewResponse())
	if ok {
		t.Error("Chain passed despite a rejecting filter")
	}
	if strings.Join(ran, ",") != "a,stop" {
		t.Errorf("ran = %v", ran)
	}
}

func TestNotFound(t *testing.T) {
	root := docRoot(t)
	writeFile(t, filepath.Join(root, "templates", "page.html"), "template")

	rec := serve(NotFound, httptest.NewRequest(http.MethodGet, "/templates/page.html", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestBrowserFilter(t *testing.T) {
	tests := []struct {
		agent string
		want  bool
	}{
		{"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0", true},
		{"Mozilla/5.0 (Macintosh) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15", true},
		{"Mozilla/4.0 (compatible; MSIE 8.0; Windows NT 6.1)", false},
		{"Mozilla/5.0 (Windows NT 10.0; Trident/7.0; rv:11.0) like Gecko", false},
	}
	for _, tt := range tests {
		t.Run(tt.agent, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("User-Agent", tt.agent)
			resp := uri.NewResponse()
			if got := BrowserFilter(req, resp); got != tt.want {
				t.Fatalf("BrowserFilter = %v, want %v", got, tt.want)
			}
			if !tt.want && resp.Header().Get("Location") != BrowserUnsupportedPath {
				t.Errorf("Location = %q", resp.Header().Get("Location"))
			}
		})
	}
}

func TestBrowserUnsupported(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, BrowserUnsupportedPath, nil)
	req.Header.Set("User-Agent", "<script>MSIE 6.0</script>")
	rec := serve(BrowserUnsupported, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Unsupported Browser") || strings.Contains(body, "<script>") {
		t.Errorf("body = %q", body)
	}
}

func TestProgressHandler(t *testing.T) {
	h := NewProgressHandler(nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/progress?title=Starting&message=%3Cb%3Ehi%3C%2Fb%3E&next=%2Fsession", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<title>Starting</title>", "&lt;b&gt;hi&lt;/b&gt;", `href="/session"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/progress?next=https%3A%2F%2Fevil.example", nil))
	if strings.Contains(rec.Body.String(), "evil.example") || strings.Contains(rec.Body.String(), "Continue") {
		t.Errorf("external next accepted: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Please wait...") {
		t.Errorf("default message missing: %s", rec.Body.String())
	}
}

func logRequest(t *testing.T, body, user string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(body))
	req.Header.Set("User-Agent", "test-browser")
	if user != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{User: user}))
	}
	return req
}

func TestLogHandler(t *testing.T) {
	store := storage.NewMemoryStore(10)
	h := NewLogHandler(store, nil)
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	rec := serve(h, logRequest(t, `{"method":"log","params":[1,"render failed"],"clientId":"c-1","id":7}`, "alice"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"result":true`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	entries, err := store.Query(context.Background(), clientlog.Query{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("Query = %v, %v", entries, err)
	}
	e := entries[0]
	if e.User != "alice" || e.Level != clientlog.LevelWarning || e.Message != "render failed" ||
		e.ClientID != "c-1" || e.UserAgent != "test-browser" || e.ID == "" {
		t.Errorf("entry = %+v", e)
	}
}

func TestLogHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantRPC  string
	}{
		{"malformed", `{"method":`, http.StatusBadRequest, "-32700"},
		{"unknown method", `{"method":"rm","params":[]}`, http.StatusOK, "-32601"},
		{"missing params", `{"method":"log"}`, http.StatusOK, "-32602"},
		{"wrong arity", `{"method":"log","params":[1]}`, http.StatusOK, "-32602"},
		{"bad level", `{"method":"log","params":[9,"x"]}`, http.StatusOK, "-32602"},
		{"bad message", `{"method":"log","params":[0,42]}`, http.StatusOK, "-32602"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore(10)
			rec := serve(NewLogHandler(store, nil), logRequest(t, tt.body, "alice"))
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantRPC) {
				t.Errorf("body = %s, want code %s", rec.Body.String(), tt.wantRPC)
			}
			if n, _ := store.Count(context.Background()); n != 0 {
				t.Errorf("stored %d entries for a rejected request", n)
			}
		})
	}
}

func TestLogHandler_NoStore(t *testing.T) {
	rec := serve(NewLogHandler(nil, nil), logRequest(t, `{"method":"log","params":[2,"hello"]}`, ""))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
