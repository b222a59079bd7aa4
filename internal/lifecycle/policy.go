package lifecycle

import (
	"encoding/hex"
	"slices"
	"unicode/utf8"

	"github.com/Izume01/reliq/internal/crypto"
)

// Policy is the set of allow-lists a Create request is checked against.
// Values outside a list are rejected, never clamped.
type Policy struct {
	TTLSeconds        []int
	MaxFailedAttempts []int
	MaxViews          []int

	DefaultTTLSeconds        int
	DefaultMaxFailedAttempts int
	DefaultMaxViews          int

	PasswordMinLength int
	MaxPayloadBytes   int
}

func DefaultPolicy() Policy {
	return Policy{
		TTLSeconds:               []int{60, 300, 600, 1800, 3600, 21600, 43200, 86400, 259200, 604800},
		MaxFailedAttempts:        []int{3, 5, 10},
		MaxViews:                 []int{1, 2, 3, 5, 10, 25},
		DefaultTTLSeconds:        300,
		DefaultMaxFailedAttempts: 5,
		DefaultMaxViews:          1,
		PasswordMinLength:        8,
		MaxPayloadBytes:          64 << 10,
	}
}

// Validate checks req against the allow-lists and the cipher's fixed
// encodings. It returns the first *ValidationError found.
func (p Policy) Validate(req *CreateRequest) error {
	if req.OwnerID == "" {
		return invalid("owner", "caller identity is required")
	}
	if len(req.Ciphertext) == 0 {
		return invalid("content", "encrypted content is required")
	}
	if p.MaxPayloadBytes > 0 && len(req.Ciphertext) > p.MaxPayloadBytes {
		return invalid("content", "exceeds %d bytes", p.MaxPayloadBytes)
	}
	if !isHex(req.IV, crypto.IVSize) {
		return invalid("iv", "must be %d hex characters", crypto.IVSize*2)
	}
	if !isHex(req.AuthTag, crypto.TagSize) {
		return invalid("tag", "must be %d hex characters", crypto.TagSize*2)
	}
	if !slices.Contains(p.TTLSeconds, req.TTLSeconds) {
		return invalid("ttl_seconds", "unsupported expiry option %d", req.TTLSeconds)
	}
	if !slices.Contains(p.MaxFailedAttempts, req.MaxFailedAttempts) {
		return invalid("max_failed_attempts", "unsupported security option %d", req.MaxFailedAttempts)
	}
	if !slices.Contains(p.MaxViews, req.MaxViews) {
		return invalid("max_views", "unsupported max views option %d", req.MaxViews)
	}
	if req.Password != "" {
		if utf8.RuneCountInString(req.Password) < p.PasswordMinLength {
			return invalid("password", "must be at least %d characters", p.PasswordMinLength)
		}
		if len(req.Password) > crypto.MaxPasswordBytes {
			return invalid("password", "must be at most %d bytes", crypto.MaxPasswordBytes)
		}
	}
	return nil
}

func isHex(s string, byteLen int) bool {
	if len(s) != byteLen*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
