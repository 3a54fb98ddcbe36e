package local

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ErrUnknownUser is returned when a user has no entry in the users file.
var ErrUnknownUser = errors.New("unknown user")

// ErrBadPassword is returned when the password does not match.
var ErrBadPassword = errors.New("incorrect password")

// UserStore holds the parsed users file. It is safe for concurrent use and
// may be reloaded while requests are verified.
type UserStore struct {
	path string

	mu     sync.RWMutex
	hashes map[string]string
}

// LoadUsers reads path into a new store.
func LoadUsers(path string) (*UserStore, error) {
	s := &UserStore{path: path, hashes: map[string]string{}}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the users file. On error the previous entries are kept.
func (s *UserStore) Reload() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open users file: %w", err)
	}
	defer f.Close()

	hashes, err := parseUsers(f)
	if err != nil {
		return fmt.Errorf("failed to parse users file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.hashes = hashes
	s.mu.Unlock()
	return nil
}

// Path returns the users file path.
func (s *UserStore) Path() string {
	return s.path
}

// Len returns the number of users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.hashes)
}

// Verify checks the credentials of user.
func (s *UserStore) Verify(user, password string) error {
	s.mu.RLock()
	encoded, ok := s.hashes[user]
	s.mu.RUnlock()

	if !ok {
		return ErrUnknownUser
	}
	match, err := VerifyPassword(password, encoded)
	if err != nil {
		return fmt.Errorf("user %q: %w", user, err)
	}
	if !match {
		return ErrBadPassword
	}
	return nil
}

func parseUsers(r io.Reader) (map[string]string, error) {
	hashes := map[string]string{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		user, encoded, ok := strings.Cut(text, ":")
		user = strings.TrimSpace(user)
		if !ok || user == "" {
			return nil, fmt.Errorf("line %d: expected user:hash", line)
		}
		if _, err := parseHash(encoded); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, dup := hashes[user]; dup {
			return nil, fmt.Errorf("line %d: duplicate user %q", line, user)
		}
		hashes[user] = encoded
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return hashes, nil
}
