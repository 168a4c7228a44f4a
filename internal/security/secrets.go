package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
)

// EncryptionPrefix marks encrypted values at rest.
const EncryptionPrefix = "ENC:"

var (
	secretKey []byte
	keyMu     sync.RWMutex

	ErrNoKey            = errors.New("secret encryption key not configured")
	ErrMalformedSecret  = errors.New("malformed encrypted secret")
	ErrDecryptionFailed = errors.New("secret decryption failed")
)

// InitKey installs the process-wide secret key from its hex encoding.
// An empty key disables encryption; values are then stored and
// returned as-is.
func InitKey(hexKey string) error {
	if hexKey == "" {
		return nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return errors.New("SECRET_KEY must be 64 hex characters (32 bytes)")
	}
	keyMu.Lock()
	secretKey = key
	keyMu.Unlock()
	return nil
}

func currentKey() []byte {
	keyMu.RLock()
	defer keyMu.RUnlock()
	return secretKey
}

// EncryptSecret encrypts a plaintext secret for database storage.
// Returns the input unchanged when no key is configured or the value
// is already encrypted.
func EncryptSecret(plaintext string) (string, error) {
	if plaintext == "" || strings.HasPrefix(plaintext, EncryptionPrefix) {
		return plaintext, nil
	}
	key := currentKey()
	if key == nil {
		return plaintext, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptionPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecret returns the plaintext for a stored secret. Values
// without the encryption prefix pass through unchanged; an encrypted
// value with no key configured is unavailable.
func DecryptSecret(stored string) (string, error) {
	if !strings.HasPrefix(stored, EncryptionPrefix) {
		return stored, nil
	}
	key := currentKey()
	if key == nil {
		return "", ErrNoKey
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EncryptionPrefix))
	if err != nil {
		return "", ErrMalformedSecret
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrMalformedSecret
	}
	plain, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
