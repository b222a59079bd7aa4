package lifecycle

import (
	"context"

	"github.com/Izume01/reliq/internal/crypto"
	"github.com/Izume01/reliq/internal/models"
)

// MaxSlugAttempts bounds the collision retry loop. With 96-bit slugs a
// single collision is already an anomaly.
const MaxSlugAttempts = 10

type slugInserter interface {
	InsertIfAbsent(ctx context.Context, secret *models.Secret) (bool, error)
}

// SlugAllocator claims a fresh slug by exclusive insert of the metadata row.
// It holds no state besides its collaborators.
type SlugAllocator struct {
	store    slugInserter
	generate func() string
}

func NewSlugAllocator(store slugInserter) *SlugAllocator {
	return &SlugAllocator{store: store, generate: crypto.GenerateSlug}
}

// Allocate sets secret.Slug and inserts the row, retrying on collision.
func (a *SlugAllocator) Allocate(ctx context.Context, secret *models.Secret) (string, error) {
	for range MaxSlugAttempts {
		secret.Slug = a.generate()
		ok, err := a.store.InsertIfAbsent(ctx, secret)
		if err != nil {
			return "", unavailable("insert secret", err)
		}
		if ok {
			return secret.Slug, nil
		}
	}
	secret.Slug = ""
	return "", ErrAllocationExhausted
}
