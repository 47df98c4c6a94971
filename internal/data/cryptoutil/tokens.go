package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math/big"

	"github.com/google/uuid"
)

// otpAlphabet is upper-case letters and digits without look-alike characters
// (I, L, O, 0, 1).
const otpAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// DefaultOTPLength is used when a caller asks for a non-positive length.
const DefaultOTPLength = 8

// URLSafeUUID returns a random v4 UUID encoded as unpadded URL-safe base64.
func URLSafeUUID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// OneTimePassword returns a random code for email confirmation and password resets.
func OneTimePassword(length int) (string, error) {
	if length <= 0 {
		length = DefaultOTPLength
	}
	limit := big.NewInt(int64(len(otpAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = otpAlphabet[n.Int64()]
	}
	return string(out), nil
}

// HashToken returns the SHA-256 hex digest used to store reset tokens at rest.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
