package bootstrap

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"

	"github.com/target/docauth/internal/data/cryptoutil"
)

// CreateSealer creates an AES-GCM sealer for provider tokens from the configured key.
// A 32 byte hex or base64 key is used as-is; any other value is hashed to 32 bytes.
// Returns a plain sealer if the key is empty or invalid (with warning log).
//
//nolint:ireturn // Returning interface is intentional for sealer abstraction
func CreateSealer(key string, logger *slog.Logger) cryptoutil.Sealer {
	if strings.TrimSpace(key) == "" {
		if logger != nil {
			logger.Warn("provider secret key is empty, provider tokens are stored unencrypted")
		}
		return cryptoutil.PlainSealer{}
	}

	sealer, err := createAESGCMSealer(key)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create sealer, provider tokens are stored unencrypted", "error", err)
		}
		return cryptoutil.PlainSealer{}
	}

	return sealer
}

func createAESGCMSealer(key string) (*cryptoutil.AESGCMSealer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("sealer key is required")
	}
	return cryptoutil.NewAESGCMSealer(deriveSealerKey(key))
}

func deriveSealerKey(key string) []byte {
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		return decoded
	}
	if decoded, err := base64.StdEncoding.DecodeString(key); err == nil && len(decoded) == 32 {
		return decoded
	}
	hash := sha256.Sum256([]byte(key))
	return hash[:]
}
