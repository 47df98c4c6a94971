package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sealer encrypts provider credentials (OAuth access and refresh tokens) before they are
// written to the user record.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

const (
	sealedPrefixV1 = "v1:"
	plainPrefix    = "plain:"
)

// AESGCMSealer implements Sealer using AES-256-GCM with a random nonce per value.
type AESGCMSealer struct {
	aead cipher.AEAD
}

// NewAESGCMSealer constructs a sealer. Key must be 32 bytes (AES-256).
func NewAESGCMSealer(key []byte) (*AESGCMSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMSealer{aead: aead}, nil
}

// Seal returns "v1:" + base64(nonce||ciphertext). Empty input stays empty.
func (s *AESGCMSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefixV1 + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values written by PlainSealer are accepted so a key can be
// introduced without rewriting existing records.
func (s *AESGCMSealer) Open(sealed string) (string, error) {
	switch {
	case sealed == "":
		return "", nil
	case strings.HasPrefix(sealed, plainPrefix):
		return PlainSealer{}.Open(sealed)
	case !strings.HasPrefix(sealed, sealedPrefixV1):
		return "", errors.New("unknown sealed value version")
	}
	data, err := base64.StdEncoding.DecodeString(sealed[len(sealedPrefixV1):])
	if err != nil {
		return "", err
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return "", errors.New("sealed value too short")
	}
	pt, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// PlainSealer marks values without encrypting them. It is used when no key is configured.
type PlainSealer struct{}

func (PlainSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return plainPrefix + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (PlainSealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, plainPrefix) {
		return "", errors.New("invalid plain sealed value")
	}
	b, err := base64.StdEncoding.DecodeString(sealed[len(plainPrefix):])
	if err != nil {
		return "", err
	}
	return string(b), nil
}
