package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testKeyHex)
	require.NoError(t, err)
	return c
}

func TestGenerateSlug(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		slug := GenerateSlug()
		raw, err := base64.RawURLEncoding.DecodeString(slug)
		require.NoError(t, err)
		assert.Len(t, raw, slugLength)
		assert.False(t, seen[slug], "duplicate slug %s", slug)
		seen[slug] = true
	}
}

func TestNewCipher_InvalidKey(t *testing.T) {
	for _, key := range []string{"", "abcd", strings.Repeat("zz", 32), testKeyHex + "00"} {
		_, err := NewCipher(key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestCipher_SealOpen(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Seal([]byte("api-key-123"))
	require.NoError(t, err)
	assert.Len(t, sealed.IV, IVSize*2)
	assert.Len(t, sealed.Tag, TagSize*2)
	assert.Len(t, sealed.Ciphertext, len("api-key-123"))

	plaintext, err := c.Open(sealed.Ciphertext, sealed.IV, sealed.Tag)
	require.NoError(t, err)
	assert.Equal(t, "api-key-123", string(plaintext))
}

func TestCipher_OpenTampered(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Seal([]byte("api-key-123"))
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed.Ciphertext...)
	tampered[0] ^= 0xff
	_, err = c.Open(tampered, sealed.IV, sealed.Tag)
	assert.ErrorIs(t, err, ErrIntegrity)

	tag, _ := hex.DecodeString(sealed.Tag)
	tag[0] ^= 0xff
	_, err = c.Open(sealed.Ciphertext, sealed.IV, hex.EncodeToString(tag))
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestCipher_OpenMalformed(t *testing.T) {
	c := newTestCipher(t)
	sealed, err := c.Seal([]byte("x"))
	require.NoError(t, err)

	_, err = c.Open(sealed.Ciphertext, "nothex", sealed.Tag)
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = c.Open(sealed.Ciphertext, sealed.IV, "abcd")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = c.Open(nil, sealed.IV, sealed.Tag)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCipher_WrongKey(t *testing.T) {
	c := newTestCipher(t)
	other, err := NewCipher(strings.Repeat("ab", 32))
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("x"))
	require.NoError(t, err)

	_, err = other.Open(sealed.Ciphertext, sealed.IV, sealed.Tag)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestCipher_OpenTransport(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Seal([]byte("hunter22"))
	require.NoError(t, err)
	payload := sealed.IV + ":" + hex.EncodeToString(sealed.Ciphertext) + ":" + sealed.Tag

	password, err := c.OpenTransport(payload)
	require.NoError(t, err)
	assert.Equal(t, "hunter22", password)

	_, err = c.OpenTransport("hunter22")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = c.OpenTransport(sealed.IV + ":zz:" + sealed.Tag)
	assert.ErrorIs(t, err, ErrMalformed)
}
