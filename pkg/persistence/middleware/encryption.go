package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/revisit/pkg/ports"
)

const envelopeKey = "__encrypted__"

// ErrKeySize is returned for keys that are not 32 bytes.
var ErrKeySize = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte

	// Fields to encrypt. Empty means ExportFields.
	Fields []ports.Field
}

type encryptionMiddleware struct {
	next   ports.ModelStore
	config EncryptionConfig
	fields map[ports.Field]bool
}

// NewEncryptionMiddleware creates a middleware that stores the configured fields as
// AES-GCM encrypted envelopes: {"__encrypted__": "<base64>"}.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrKeySize
	}
	for _, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, ErrKeySize
		}
	}
	fields := fieldSet(config.Fields)
	return func(next ports.ModelStore) ports.ModelStore {
		return &encryptionMiddleware{next: next, config: config, fields: fields}
	}, nil
}

func (m *encryptionMiddleware) Set(ctx context.Context, field ports.Field, value json.RawMessage) error {
	if !m.fields[field] {
		return m.next.Set(ctx, field, value)
	}

	ciphertext, err := encrypt(value, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", field, err)
	}
	envelope, err := json.Marshal(map[string]string{
		envelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return err
	}
	return m.next.Set(ctx, field, envelope)
}

func (m *encryptionMiddleware) Get(ctx context.Context, field ports.Field) (json.RawMessage, error) {
	value, err := m.next.Get(ctx, field)
	if err != nil || !m.fields[field] {
		return value, err
	}
	return m.open(value)
}

func (m *encryptionMiddleware) Subscribe(ctx context.Context, field ports.Field, fn ports.ChangeFunc) (func(), error) {
	if !m.fields[field] {
		return m.next.Subscribe(ctx, field, fn)
	}
	return m.next.Subscribe(ctx, field, func(value json.RawMessage) {
		plain, err := m.open(value)
		if err != nil {
			// Undecryptable values never reach subscribers.
			return
		}
		fn(plain)
	})
}

func (m *encryptionMiddleware) open(value json.RawMessage) (json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(value, &envelope); err != nil {
		return nil, errors.New("value is missing encrypted data envelope")
	}
	var encoded string
	if err := json.Unmarshal(envelope[envelopeKey], &encoded); err != nil || encoded == "" {
		// Fail secure: a configured field must hold an envelope.
		return nil, errors.New("value is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt value: %w", err)
	}
	return plain, nil
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
