package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrInvalidSeal is returned by Open for tokens that fail authentication,
// were sealed for another purpose, or have expired.
var ErrInvalidSeal = errors.New("invalid sealed token")

// StateSealer turns plain OAuth state strings into opaque, tamper-proof,
// expiring tokens using AES-256-GCM.
type StateSealer struct {
	gcm cipher.AEAD
	ttl time.Duration
	now func() time.Time
}

// NewStateSealer creates a StateSealer with the given 32-byte key.
// A zero ttl disables expiry checks.
func NewStateSealer(key []byte, ttl time.Duration) (*StateSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("state key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &StateSealer{gcm: gcm, ttl: ttl, now: time.Now}, nil
}

// NewStateSealerFromHex decodes a hex key; an empty key returns nil so
// callers fall back to plain state.
func NewStateSealerFromHex(hexKey string, ttl time.Duration) (*StateSealer, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode state key: %w", err)
	}
	return NewStateSealer(key, ttl)
}

// Seal binds plaintext to purpose and returns a URL-safe token.
func (s *StateSealer) Seal(plaintext, purpose string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	payload := make([]byte, 8+len(plaintext))
	binary.BigEndian.PutUint64(payload, uint64(s.now().Unix()))
	copy(payload[8:], plaintext)

	sealed := s.gcm.Seal(nonce, nonce, payload, []byte(purpose))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal for the same purpose.
func (s *StateSealer) Open(token, purpose string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidSeal
	}
	nonceSize := s.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidSeal
	}
	nonce, ct := data[:nonceSize], data[nonceSize:]
	payload, err := s.gcm.Open(nil, nonce, ct, []byte(purpose))
	if err != nil || len(payload) < 8 {
		return "", ErrInvalidSeal
	}
	issued := time.Unix(int64(binary.BigEndian.Uint64(payload)), 0)
	if s.ttl > 0 && s.now().Sub(issued) > s.ttl {
		return "", ErrInvalidSeal
	}
	return string(payload[8:]), nil
}
