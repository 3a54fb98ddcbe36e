package cookie

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/workbench/pkg/security/crypto"
)

// UserIDCookie is the cookie carrying the signed-in user.
const UserIDCookie = "user-id"

// keyInfo separates the cookie key from other keys derived from the file.
const keyInfo = "workbench.secure-cookie.v1"

// minKeyFileBytes is the shortest acceptable key file.
const minKeyFileBytes = 32

var (
	// ErrMissing is returned by Read when the request carries no cookie.
	ErrMissing = errors.New("secure cookie not present")

	// ErrInvalid is returned for cookies that fail decoding or
	// authentication.
	ErrInvalid = errors.New("secure cookie invalid")

	// ErrExpired is returned for authentic cookies past their expiry.
	ErrExpired = errors.New("secure cookie expired")
)

// Config configures the secure cookie codec.
type Config struct {
	// KeyFile is the path of the key material.
	KeyFile string

	// Secure marks cookies as HTTPS only.
	Secure bool

	// Path is the cookie path. Default: "/".
	Path string
}

// Codec encodes and decodes secure cookies.
type Codec struct {
	key    []byte
	secure bool
	path   string
	now    func() time.Time
}

// Initialize loads or creates the key file and returns a codec. The crypto
// subsystem must be initialized first.
func Initialize(cfg Config) (*Codec, error) {
	if !crypto.Initialized() {
		return nil, crypto.ErrNotInitialized
	}
	if cfg.KeyFile == "" {
		return nil, errors.New("secure cookie key file not configured")
	}

	secret, err := loadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return NewCodec(secret, cfg)
}

// NewCodec returns a codec keyed from secret.
func NewCodec(secret []byte, cfg Config) (*Codec, error) {
	key, err := crypto.DeriveKey(secret, keyInfo)
	if err != nil {
		return nil, err
	}
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	return &Codec{key: key, secure: cfg.Secure, path: path, now: time.Now}, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return createKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat secure cookie key: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("secure cookie key is not a regular file: %s", path)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return nil, fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	// #nosec G304 - path comes from server configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secure cookie key: %w", err)
	}
	if len(data) < minKeyFileBytes {
		return nil, fmt.Errorf("secure cookie key %s is too short: %d bytes (minimum %d)", path, len(data), minKeyFileBytes)
	}
	return data, nil
}

func createKey(path string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create secure cookie key directory: %w", err)
	}

	key, err := crypto.RandomBytes(crypto.KeySize * 2)
	if err != nil {
		return nil, err
	}
	// O_EXCL so a concurrently created key is never overwritten.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create secure cookie key: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write secure cookie key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write secure cookie key: %w", err)
	}

	slog.Info("created secure cookie key", "path", path)
	return key, nil
}

// Encode seals value and its expiry for the named cookie.
func (c *Codec) Encode(name, value string, expires time.Time) (string, error) {
	payload := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(payload, uint64(expires.Unix()))
	copy(payload[8:], value)

	blob, err := crypto.Seal(c.key, payload, []byte(name))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(blob), nil
}

// Decode opens a value produced by Encode for the same name.
func (c *Codec) Decode(name, encoded string) (string, time.Time, error) {
	blob, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	payload, err := crypto.Open(c.key, blob, []byte(name))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(payload) < 8 {
		return "", time.Time{}, fmt.Errorf("%w: truncated payload", ErrInvalid)
	}

	expires := time.Unix(int64(binary.BigEndian.Uint64(payload)), 0)
	if !c.now().Before(expires) {
		return "", expires, ErrExpired
	}
	return string(payload[8:]), expires, nil
}

// Set writes the named cookie to w. Persistent cookies carry an explicit
// expiry; otherwise the browser drops the cookie when it closes while the
// sealed expiry still bounds its validity.
func (c *Codec) Set(w http.ResponseWriter, name, value string, expires time.Time, persist bool) error {
	encoded, err := c.Encode(name, value, expires)
	if err != nil {
		return err
	}

	ck := &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     c.path,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if persist {
		ck.Expires = expires
	}
	http.SetCookie(w, ck)
	return nil
}

// Read decodes the named cookie of r.
func (c *Codec) Read(r *http.Request, name string) (string, time.Time, error) {
	ck, err := r.Cookie(name)
	if err != nil {
		return "", time.Time{}, ErrMissing
	}
	return c.Decode(name, ck.Value)
}

// Remove expires the named cookie.
func (c *Codec) Remove(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     c.path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
