package store

import (
	"context"
	"errors"
	"time"

	"github.com/Izume01/reliq/internal/models"
)

var (
	ErrNotFound = errors.New("secret not found")
	ErrExists   = errors.New("secret already exists")
)

// Counter names one of the two bounded counters on a secret row.
type Counter string

const (
	ViewCount      Counter = "view_count"
	FailedAttempts Counter = "failed_attempts"
)

// Claim is the outcome of a conditional increment. Won is true only when
// exactly one row was updated; Value is the counter after the increment.
type Claim struct {
	Won   bool
	Value int
}

// MetadataStore holds one secret row per slug. Every mutation is a single
// statement scoped to one row; nothing is read and then written back.
type MetadataStore interface {
	// InsertIfAbsent inserts the row unless the slug is taken. It reports
	// false, not an error, on a slug collision.
	InsertIfAbsent(ctx context.Context, secret *models.Secret) (bool, error)

	// Get returns ErrNotFound when no row exists.
	Get(ctx context.Context, slug string) (*models.Secret, error)

	// ConditionalIncrement adds one to the counter only while it is below
	// upperBound, atomically. ViewCount claims also fail once the row is
	// locked out.
	ConditionalIncrement(ctx context.Context, slug string, counter Counter, upperBound int) (Claim, error)

	// Delete is idempotent.
	Delete(ctx context.Context, slug string) error

	ListByOwner(ctx context.Context, ownerID string) ([]models.Secret, error)

	// ListStale returns slugs of rows that can never be read again: past
	// their expiry, exhausted, or locked out.
	ListStale(ctx context.Context, now time.Time, limit int) ([]string, error)

	Close() error
}

// CiphertextStore holds encrypted payloads with a store-enforced expiry.
// Entries are write-once and delete-once.
type CiphertextStore interface {
	// Put returns ErrExists if the key is already present.
	Put(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Get returns ErrNotFound once the entry is deleted or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete is idempotent.
	Delete(ctx context.Context, key string) error

	// TimeToLive returns ErrNotFound once the entry is deleted or expired.
	TimeToLive(ctx context.Context, key string) (time.Duration, error)

	Close() error
}
