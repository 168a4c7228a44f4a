package security

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func withKey(t *testing.T, hexKey string) {
	t.Helper()
	require.NoError(t, InitKey(hexKey))
	t.Cleanup(func() {
		keyMu.Lock()
		secretKey = nil
		keyMu.Unlock()
	})
}

func TestInitKeyValidation(t *testing.T) {
	assert.NoError(t, InitKey(""), "empty key disables encryption")
	assert.Error(t, InitKey("deadbeef"), "too short")
	assert.Error(t, InitKey(strings.Repeat("zz", 32)), "not hex")
	assert.NoError(t, InitKey(testKey))
	keyMu.Lock()
	secretKey = nil
	keyMu.Unlock()
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	withKey(t, testKey)

	stored, err := EncryptSecret("radius-shared-secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, EncryptionPrefix))
	assert.NotContains(t, stored, "radius-shared-secret")

	plain, err := DecryptSecret(stored)
	require.NoError(t, err)
	assert.Equal(t, "radius-shared-secret", plain)
}

func TestEncryptIsIdempotentOnEncryptedValues(t *testing.T) {
	withKey(t, testKey)

	once, err := EncryptSecret("secret")
	require.NoError(t, err)
	twice, err := EncryptSecret(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestPlaintextPassthrough(t *testing.T) {
	withKey(t, testKey)

	// Legacy rows stored before encryption was enabled decrypt as-is.
	plain, err := DecryptSecret("legacy-plaintext")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plaintext", plain)
}

func TestNoKeyConfigured(t *testing.T) {
	stored, err := EncryptSecret("secret")
	require.NoError(t, err)
	assert.Equal(t, "secret", stored, "without a key values stay plaintext")

	_, err = DecryptSecret(EncryptionPrefix + "AAAA")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestDecryptMalformedCiphertext(t *testing.T) {
	withKey(t, testKey)

	_, err := DecryptSecret(EncryptionPrefix + "not-base64!!!")
	assert.ErrorIs(t, err, ErrMalformedSecret)

	_, err = DecryptSecret(EncryptionPrefix + "AAAA")
	assert.ErrorIs(t, err, ErrMalformedSecret)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	withKey(t, testKey)

	stored, err := EncryptSecret("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EncryptionPrefix))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	tampered := EncryptionPrefix + base64.StdEncoding.EncodeToString(raw)

	_, err = DecryptSecret(tampered)
	assert.Error(t, err)
}

func TestEmptySecretPassesThrough(t *testing.T) {
	withKey(t, testKey)

	stored, err := EncryptSecret("")
	require.NoError(t, err)
	assert.Empty(t, stored)
}
