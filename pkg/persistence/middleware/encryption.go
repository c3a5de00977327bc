package middleware

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/knot/pkg/ports"
)

// EnvelopePrefix marks values written by the encryption middleware.
const EnvelopePrefix = "enc:v1:"

// ErrNotEncrypted is returned when reading a value that has no envelope.
var ErrNotEncrypted = errors.New("value is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	wrapped
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that stores every value as an
// AES-GCM sealed JSON document, so the backing store never sees plaintext.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.Provider) ports.Provider {
		return &encryptionMiddleware{
			wrapped: wrapped{next: next},
			config:  config,
		}
	}
}

func (m *encryptionMiddleware) GetValue(ctx context.Context, target any, name string) (any, error) {
	plainText, err := m.read(ctx, target, name)
	if err != nil || plainText == nil {
		return nil, err
	}

	var value any
	if err := json.Unmarshal(plainText, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted value: %w", err)
	}
	return value, nil
}

// SetValue seals value. Every seal uses a fresh nonce, so a write of the
// current plaintext is skipped to keep the provider's no-op-write rule.
func (m *encryptionMiddleware) SetValue(ctx context.Context, target any, name string, value any) error {
	plainText, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if current, err := m.read(ctx, target, name); err == nil && current != nil && bytes.Equal(current, plainText) {
		return nil
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}
	return m.next.SetValue(ctx, target, name, EnvelopePrefix+base64.StdEncoding.EncodeToString(ciphertext))
}

// read returns the decrypted JSON of the stored value, or nil when unset.
func (m *encryptionMiddleware) read(ctx context.Context, target any, name string) ([]byte, error) {
	raw, err := m.next.GetValue(ctx, target, name)
	if err != nil || raw == nil {
		return nil, err
	}

	envelope, ok := raw.(string)
	if !ok || !strings.HasPrefix(envelope, EnvelopePrefix) {
		// Fail secure: plaintext written behind our back is not trusted.
		return nil, ErrNotEncrypted
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(envelope, EnvelopePrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt value: %w", err)
	}
	return plainText, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
