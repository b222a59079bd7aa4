package models

import "time"

// Secret is the metadata row for one stored secret. The ciphertext itself
// lives in the ciphertext store under the same slug.
type Secret struct {
	Slug              string     `json:"slug"`
	OwnerID           string     `json:"-"`
	IV                string     `json:"-"` // hex, 16 bytes
	AuthTag           string     `json:"-"` // hex, 16 bytes
	PasswordHash      string     `json:"-"` // empty when not password-gated
	MaxFailedAttempts int        `json:"max_failed_attempts"`
	FailedAttempts    int        `json:"failed_attempts"`
	MaxViews          int        `json:"max_views"`
	ViewCount         int        `json:"view_count"`
	TTLSeconds        int        `json:"ttl_seconds"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"` // display only, the ciphertext TTL is authoritative
	LastViewedAt      *time.Time `json:"last_viewed_at,omitempty"`
}

func (s *Secret) PasswordRequired() bool {
	return s.PasswordHash != ""
}

// Exhausted reports whether every allowed view has been claimed.
func (s *Secret) Exhausted() bool {
	return s.ViewCount >= s.MaxViews
}

// LockedOut reports whether the wrong-password budget is spent.
func (s *Secret) LockedOut() bool {
	return s.FailedAttempts >= s.MaxFailedAttempts
}

func (s *Secret) ViewsRemaining() int {
	return max(s.MaxViews-s.ViewCount, 0)
}

func (s *Secret) AttemptsRemaining() int {
	return max(s.MaxFailedAttempts-s.FailedAttempts, 0)
}

// Summary is a secret as shown to its owner, joined with the live TTL of
// its ciphertext.
type Summary struct {
	Secret
	PasswordRequired bool          `json:"password_required"`
	TTLRemaining     time.Duration `json:"-"`
	Expired          bool          `json:"expired"`
}
