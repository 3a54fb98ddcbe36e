package cookie

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/workbench/pkg/security/crypto"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec([]byte(strings.Repeat("k", 64)), Config{})
	if err != nil {
		t.Fatal(err)
	}
	return codec
}

func TestInitialize_CreatesKeyFile(t *testing.T) {
	if err := crypto.Initialize(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "nested", "secure-cookie-key")

	c1, err := Initialize(Config{KeyFile: path})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %o, want 600", info.Mode().Perm())
	}

	// A second codec from the same file decodes the first one's cookies.
	c2, err := Initialize(Config{KeyFile: path})
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := c1.Encode(UserIDCookie, "alice", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if user, _, err := c2.Decode(UserIDCookie, encoded); err != nil || user != "alice" {
		t.Errorf("Decode() = %q, %v", user, err)
	}
}

func TestInitialize_RejectsBadKeyFiles(t *testing.T) {
	if err := crypto.Initialize(); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	short := filepath.Join(dir, "short")
	os.WriteFile(short, []byte("tiny"), 0o600)

	open := filepath.Join(dir, "open")
	os.WriteFile(open, []byte(strings.Repeat("x", 64)), 0o644)

	tests := []struct {
		name string
		path string
	}{
		{"too short", short},
		{"world readable", open},
		{"directory", dir},
		{"empty path", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Initialize(Config{KeyFile: tt.path}); err == nil {
				t.Error("Initialize() succeeded, want error")
			}
		})
	}
}

func TestCodec_Decode(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now()

	valid, _ := codec.Encode(UserIDCookie, "alice", now.Add(time.Hour))
	expired, _ := codec.Encode(UserIDCookie, "alice", now.Add(-time.Second))

	other, _ := NewCodec([]byte(strings.Repeat("z", 64)), Config{})
	foreign, _ := other.Encode(UserIDCookie, "mallory", now.Add(time.Hour))

	tests := []struct {
		name    string
		cookie  string
		value   string
		wantErr error
	}{
		{"valid", valid, "alice", nil},
		{"expired", expired, "", ErrExpired},
		{"foreign key", foreign, "", ErrInvalid},
		{"garbage", "not-base64!!", "", ErrInvalid},
		{"truncated", valid[:20], "", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, _, err := codec.Decode(UserIDCookie, tt.cookie)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if value != tt.value {
				t.Errorf("Decode() = %q, want %q", value, tt.value)
			}
		})
	}

	t.Run("name is authenticated", func(t *testing.T) {
		if _, _, err := codec.Decode("other-cookie", valid); !errors.Is(err, ErrInvalid) {
			t.Errorf("Decode() under other name error = %v, want ErrInvalid", err)
		}
	})
}

func TestCodec_SetReadRemove(t *testing.T) {
	codec := newTestCodec(t)
	expires := time.Now().Add(time.Hour)

	rec := httptest.NewRecorder()
	if err := codec.Set(rec, UserIDCookie, "bob", expires, true); err != nil {
		t.Fatal(err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("Set() wrote %d cookies", len(cookies))
	}
	ck := cookies[0]
	if !ck.HttpOnly || ck.SameSite != http.SameSiteLaxMode || ck.Path != "/" {
		t.Errorf("cookie attributes = %+v", ck)
	}
	if ck.Expires.IsZero() {
		t.Error("persistent cookie has no expiry")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	user, got, err := codec.Read(req, UserIDCookie)
	if err != nil || user != "bob" {
		t.Fatalf("Read() = %q, %v", user, err)
	}
	if got.Unix() != expires.Unix() {
		t.Errorf("expiry = %v, want %v", got, expires)
	}

	if _, _, err := codec.Read(httptest.NewRequest(http.MethodGet, "/", nil), UserIDCookie); !errors.Is(err, ErrMissing) {
		t.Errorf("Read() without cookie error = %v, want ErrMissing", err)
	}

	rec = httptest.NewRecorder()
	codec.Remove(rec, UserIDCookie)
	removed := rec.Result().Cookies()
	if len(removed) != 1 || removed[0].MaxAge >= 0 {
		t.Errorf("Remove() cookies = %+v", removed)
	}
}

func TestCodec_SessionCookie(t *testing.T) {
	codec := newTestCodec(t)

	rec := httptest.NewRecorder()
	if err := codec.Set(rec, UserIDCookie, "carol", time.Now().Add(time.Hour), false); err != nil {
		t.Fatal(err)
	}
	if ck := rec.Result().Cookies()[0]; !ck.Expires.IsZero() {
		t.Errorf("session cookie has expiry %v", ck.Expires)
	}
}
