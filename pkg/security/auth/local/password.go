package local

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"mercator-hq/workbench/pkg/security/crypto"
)

// ErrInvalidHash is returned for a malformed password hash.
var ErrInvalidHash = errors.New("invalid password hash")

// Params are the Argon2id tuning parameters.
type Params struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

// DefaultParams are used by HashPassword.
var DefaultParams = Params{
	Time:       1,
	Memory:     64 * 1024,
	Threads:    4,
	KeyLength:  32,
	SaltLength: 16,
}

const hashPrefix = "argon2id"

// HashPassword returns the encoded Argon2id hash of password.
func HashPassword(password string) (string, error) {
	return HashPasswordWithParams(password, DefaultParams)
}

// HashPasswordWithParams hashes password with p. Zero fields take their
// default.
func HashPasswordWithParams(password string, p Params) (string, error) {
	if p.Time == 0 {
		p.Time = DefaultParams.Time
	}
	if p.Memory == 0 {
		p.Memory = DefaultParams.Memory
	}
	if p.Threads == 0 {
		p.Threads = DefaultParams.Threads
	}
	if p.KeyLength == 0 {
		p.KeyLength = DefaultParams.KeyLength
	}
	if p.SaltLength == 0 {
		p.SaltLength = DefaultParams.SaltLength
	}

	salt, err := crypto.RandomBytes(int(p.SaltLength))
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLength)

	return fmt.Sprintf("%s$%d$%d$%d$%s$%s", hashPrefix, p.Time, p.Memory, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword reports whether password matches the encoded hash.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

type parsedHash struct {
	params Params
	salt   []byte
	key    []byte
}

func parseHash(encoded string) (parsedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return parsedHash{}, fmt.Errorf("%w: expected 6 fields, got %d", ErrInvalidHash, len(parts))
	}
	if parts[0] != hashPrefix {
		return parsedHash{}, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidHash, parts[0])
	}

	var nums [3]uint64
	for i, name := range []string{"time", "memory", "threads"} {
		n, err := strconv.ParseUint(parts[i+1], 10, 32)
		if err != nil || n == 0 {
			return parsedHash{}, fmt.Errorf("%w: bad %s parameter %q", ErrInvalidHash, name, parts[i+1])
		}
		nums[i] = n
	}
	if nums[2] > 255 {
		return parsedHash{}, fmt.Errorf("%w: thread count %d out of range", ErrInvalidHash, nums[2])
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return parsedHash{}, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return parsedHash{}, fmt.Errorf("%w: key: %v", ErrInvalidHash, err)
	}

	return parsedHash{
		params: Params{
			Time:       uint32(nums[0]),
			Memory:     uint32(nums[1]),
			Threads:    uint8(nums[2]),
			KeyLength:  uint32(len(key)),
			SaltLength: uint32(len(salt)),
		},
		salt: salt,
		key:  key,
	}, nil
}
