package lifecycle

import (
	"errors"
	"fmt"
)

// Input errors.
var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("invalid secret options")

	// ErrAllocationExhausted means every slug candidate collided.
	ErrAllocationExhausted = errors.New("unable to allocate a unique slug")
)

// Access errors. Each one ends the call; none is retried by the engine.
var (
	ErrNotFound = errors.New("secret not found")

	// ErrPasswordRequired means the secret is password-gated and no
	// password was supplied. No attempt is charged.
	ErrPasswordRequired = errors.New("password is required")

	// ErrInvalidPassword is matched by every *AttemptError.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrLockedOut means the wrong-password budget is spent and the secret
	// has been destroyed.
	ErrLockedOut = errors.New("too many failed attempts, secret has been destroyed")

	// ErrExhausted means every allowed view has been claimed.
	ErrExhausted = errors.New("view limit reached, secret has been destroyed")

	// ErrExpired means the ciphertext is gone while metadata still existed.
	ErrExpired = errors.New("secret has expired")

	// ErrDecryptionFailed means the stored ciphertext failed authentication.
	// The view that reached it is spent.
	ErrDecryptionFailed = errors.New("decryption failed")

	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable wraps transport failures from either store.
	ErrUnavailable = errors.New("store unavailable")
)

// ValidationError reports a rejected Create input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// AttemptError is a wrong password. Remaining is the number of guesses left;
// at zero the secret is destroyed and the error also matches ErrLockedOut.
type AttemptError struct {
	Remaining int
}

func (e *AttemptError) Error() string {
	if e.Remaining == 0 {
		return "invalid password, no attempts remaining: " + ErrLockedOut.Error()
	}
	return fmt.Sprintf("invalid password, %d attempts remaining", e.Remaining)
}

func (e *AttemptError) Is(target error) bool {
	switch target {
	case ErrInvalidPassword:
		return true
	case ErrLockedOut:
		return e.Remaining == 0
	}
	return false
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
