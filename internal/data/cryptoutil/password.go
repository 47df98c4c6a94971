package cryptoutil

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // PBKDF2-SHA1 is the credential format the database verifies
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 iteration count used for new hashes.
	DefaultIterations = 10
	// KeyLength is the derived key length in bytes.
	KeyLength = 20
	// SaltSize is the number of random bytes in a salt before hex encoding.
	SaltSize = 16
)

// ErrPasswordMismatch is returned for every failed verification, including missing hash material.
var ErrPasswordMismatch = errors.New("password mismatch")

// PasswordHash is a salted PBKDF2 hash. Salt and DerivedKey are hex strings; the hex salt
// string itself is the PBKDF2 salt input.
type PasswordHash struct {
	Salt       string
	DerivedKey string
	Iterations int
}

// PasswordHasher hashes and verifies passwords with PBKDF2-SHA1.
type PasswordHasher struct {
	iterations int
}

// NewPasswordHasher returns a hasher using iterations for new hashes. Non-positive values
// select DefaultIterations.
func NewPasswordHasher(iterations int) *PasswordHasher {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &PasswordHasher{iterations: iterations}
}

// Hash derives a key for password under a fresh random salt.
func (h *PasswordHasher) Hash(password string) (PasswordHash, error) {
	raw := make([]byte, SaltSize)
	if _, err := rand.Read(raw); err != nil {
		return PasswordHash{}, fmt.Errorf("generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)
	return PasswordHash{
		Salt:       salt,
		DerivedKey: derive(password, salt, h.iterations),
		Iterations: h.iterations,
	}, nil
}

// Verify recomputes the derived key for password and compares it in constant time.
// A zero Iterations value means DefaultIterations.
func (h *PasswordHasher) Verify(hash PasswordHash, password string) error {
	if hash.Salt == "" || hash.DerivedKey == "" {
		return ErrPasswordMismatch
	}
	iterations := hash.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	got := derive(password, hash.Salt, iterations)
	if subtle.ConstantTimeCompare([]byte(got), []byte(hash.DerivedKey)) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

func derive(password, salt string, iterations int) string {
	return hex.EncodeToString(pbkdf2.Key([]byte(password), []byte(salt), iterations, KeyLength, sha1.New))
}
