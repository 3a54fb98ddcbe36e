// Package crypto provides the symmetric primitives behind secure cookies
// and the session proxy shared secret: random bytes, HKDF-SHA256 key
// derivation, and XChaCha20-Poly1305 authenticated encryption.
//
// Encrypted blobs have the layout
//
//	[Version: 1 byte] [Nonce: 24 bytes] [Ciphertext+Tag: N+16 bytes]
//
// The version byte is authenticated along with caller supplied additional
// data, so a blob sealed for one purpose cannot be opened for another.
package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size in bytes of every symmetric key.
const KeySize = chacha20poly1305.KeySize

// BlobVersion is prepended to every sealed blob.
const BlobVersion byte = 0x01

// Overhead is the size added to a plaintext by Seal.
const Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var (
	// ErrNotInitialized is returned by consumers that require Initialize.
	ErrNotInitialized = errors.New("crypto subsystem not initialized")

	// ErrDecrypt is returned when a blob fails authentication.
	ErrDecrypt = errors.New("decryption failed")
)

var initialized atomic.Bool

// Initialize verifies that the random source and AEAD work. It must succeed
// before secure cookies can be initialized.
func Initialize() error {
	key, err := RandomBytes(KeySize)
	if err != nil {
		return err
	}

	probe := []byte("workbench crypto self-test")
	aad := []byte("self-test")
	blob, err := Seal(key, probe, aad)
	if err != nil {
		return fmt.Errorf("crypto self-test seal: %w", err)
	}
	out, err := Open(key, blob, aad)
	if err != nil {
		return fmt.Errorf("crypto self-test open: %w", err)
	}
	if !bytes.Equal(out, probe) {
		return errors.New("crypto self-test round trip mismatch")
	}

	initialized.Store(true)
	return nil
}

// Initialized reports whether Initialize has succeeded.
func Initialized() bool {
	return initialized.Load()
}

// RandomBytes returns n bytes from the system random source.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}

// DeriveKey derives a KeySize key from secret with HKDF-SHA256. The info
// string separates keys derived for different purposes.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("cannot derive key from empty secret")
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under key, authenticating aad.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), Overhead+len(plaintext))
	out[0] = BlobVersion
	copy(out[1:], nonce[:])
	return aead.Seal(out, nonce[:], plaintext, buildAAD(aad)), nil
}

// Open decrypts a blob produced by Seal. Any failure (short blob, unknown
// version, wrong key, tampering, mismatched aad) is reported as ErrDecrypt.
func Open(key, blob, aad []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, fmt.Errorf("%w: blob is %d bytes, minimum is %d", ErrDecrypt, len(blob), Overhead)
	}
	if blob[0] != BlobVersion {
		return nil, fmt.Errorf("%w: unsupported blob version %d", ErrDecrypt, blob[0])
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], buildAAD(aad))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func buildAAD(aad []byte) []byte {
	out := make([]byte, 1+len(aad))
	out[0] = BlobVersion
	copy(out[1:], aad)
	return out
}
