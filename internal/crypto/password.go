package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt will hash.
const MaxPasswordBytes = 72

const DefaultBcryptCost = 12

// PasswordGate hashes and verifies secret passwords with bcrypt. It never
// logs or stores its plaintext input.
type PasswordGate struct {
	cost int
}

func NewPasswordGate(cost int) *PasswordGate {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	return &PasswordGate{cost: cost}
}

func (g *PasswordGate) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), g.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. A mismatch is (false, nil);
// an error means the hash itself is unusable.
func (g *PasswordGate) Verify(plaintext, hash string) (bool, error) {
	if len(plaintext) > MaxPasswordBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}
