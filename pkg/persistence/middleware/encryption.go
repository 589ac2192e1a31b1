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

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// envelopeField marks a commit record whose changes are an encrypted blob.
const envelopeField = "__encrypted__"

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
	next   ports.CommitStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts committed state
// changes using AES-GCM (Envelope Encryption). Each commit is stored as a
// single opaque change; the real changes only exist in plaintext on the way
// in and out of this wrapper.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.CommitStore) ports.CommitStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Commit(ctx context.Context, sessionID, actionID string, changes []domain.StateChange) error {
	plainText, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt changes: %w", err)
	}

	// One opaque change hides targets, fields and values alike.
	envelope := []domain.StateChange{{
		Field:    envelopeField,
		NewValue: base64.StdEncoding.EncodeToString(ciphertext),
	}}
	return m.next.Commit(ctx, sessionID, actionID, envelope)
}

func (m *encryptionMiddleware) Commits(ctx context.Context, sessionID string) ([]ports.CommitRecord, error) {
	records, err := m.next.Commits(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]ports.CommitRecord, 0, len(records))
	for _, record := range records {
		if len(record.Changes) != 1 || record.Changes[0].Field != envelopeField {
			// Fail secure: with encryption configured, a plain record is
			// either tampering or a misconfigured migration.
			return nil, fmt.Errorf("record %s is missing the encrypted envelope", record.ActionID)
		}

		encryptedStr, ok := record.Changes[0].NewValue.(string)
		if !ok {
			return nil, fmt.Errorf("record %s has a malformed envelope", record.ActionID)
		}
		ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
		}

		plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt record %s: %w", record.ActionID, err)
		}

		var changes []domain.StateChange
		if err := json.Unmarshal(plainText, &changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decrypted changes: %w", err)
		}
		out = append(out, ports.CommitRecord{ActionID: record.ActionID, Changes: changes})
	}
	return out, nil
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
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
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
