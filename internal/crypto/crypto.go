// Package crypto holds the primitives the secret lifecycle leans on: slug
// generation, the AES-256-GCM oracle, and password hashing.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
)

const (
	slugLength = 12 // bytes of entropy, 96 bits
	keySize    = 32 // AES-256
	IVSize     = 16
	TagSize    = 16
)

var (
	ErrInvalidKey = errors.New("cipher key must be 64 hex characters")
	ErrMalformed  = errors.New("malformed ciphertext")
	ErrIntegrity  = errors.New("integrity check failed")
)

// GenerateSlug returns a URL-safe identifier with 96 bits of entropy. The
// slug is the bearer capability for a secret, so it must come from
// crypto/rand.
func GenerateSlug() string {
	bytes := make([]byte, slugLength)
	if _, err := rand.Read(bytes); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}

// Sealed is the cipher output in the hex encoding used at rest and on the
// wire. The tag is carried separately from the ciphertext.
type Sealed struct {
	Ciphertext []byte
	IV         string
	Tag        string
}

// Cipher is the symmetric-key oracle. The key is held in a memguard enclave
// and only decrypted into locked memory for the duration of one operation.
type Cipher struct {
	key *memguard.Enclave
}

func NewCipher(keyHex string) (*Cipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != keySize {
		return nil, ErrInvalidKey
	}
	// NewEnclave wipes key.
	return &Cipher{key: memguard.NewEnclave(key)}, nil
}

func (c *Cipher) Seal(plaintext []byte) (Sealed, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Sealed{}, fmt.Errorf("iv generation failed: %w", err)
	}

	var sealed []byte
	err := c.withAEAD(func(gcm cipher.AEAD) error {
		sealed = gcm.Seal(nil, iv, plaintext, nil)
		return nil
	})
	if err != nil {
		return Sealed{}, err
	}

	split := len(sealed) - TagSize
	return Sealed{
		Ciphertext: sealed[:split],
		IV:         hex.EncodeToString(iv),
		Tag:        hex.EncodeToString(sealed[split:]),
	}, nil
}

// Open authenticates and decrypts. Any encoding or length problem is
// ErrMalformed; a tag mismatch is ErrIntegrity.
func (c *Cipher) Open(ciphertext []byte, ivHex, tagHex string) ([]byte, error) {
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != IVSize {
		return nil, fmt.Errorf("%w: bad iv", ErrMalformed)
	}
	tag, err := hex.DecodeString(tagHex)
	if err != nil || len(tag) != TagSize {
		return nil, fmt.Errorf("%w: bad tag", ErrMalformed)
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrMalformed)
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	var plaintext []byte
	err = c.withAEAD(func(gcm cipher.AEAD) error {
		out, err := gcm.Open(nil, iv, sealed, nil)
		if err != nil {
			return ErrIntegrity
		}
		plaintext = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// OpenTransport decrypts a value sealed for transport as "iv:content:tag",
// all hex. The web client seals passwords this way before sending them.
func (c *Cipher) OpenTransport(payload string) (string, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected iv:content:tag", ErrMalformed)
	}
	content, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad content", ErrMalformed)
	}
	plaintext, err := c.Open(content, parts[0], parts[2])
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *Cipher) withAEAD(fn func(cipher.AEAD) error) error {
	buf, err := c.key.Open()
	if err != nil {
		return fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()

	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		return fmt.Errorf("cipher creation failed: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return fmt.Errorf("GCM creation failed: %w", err)
	}

	return fn(gcm)
}
