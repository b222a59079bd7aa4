package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Izume01/reliq/internal/models"
)

// setupTestDB opens a migrated SQLite database in a per-test temp directory.
// A real file (rather than a shared-cache memory DB) keeps WAL and
// busy_timeout semantics identical to production, which the concurrency
// tests depend on.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "reliq.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func makeSecret(slug, owner string) *models.Secret {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Secret{
		Slug:              slug,
		OwnerID:           owner,
		IV:                "00112233445566778899aabbccddeeff",
		AuthTag:           "ffeeddccbbaa99887766554433221100",
		MaxFailedAttempts: 3,
		MaxViews:          2,
		TTLSeconds:        300,
		CreatedAt:         created,
		ExpiresAt:         created.Add(300 * time.Second),
	}
}
