package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Izume01/reliq/internal/models"
)

// Compile-time interface satisfaction check.
var _ MetadataStore = (*SQLiteStore)(nil)

// timeFormat is fixed-width so stored timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000Z"

const secretColumns = `slug, owner_id, iv, auth_tag, password_hash, max_failed_attempts, failed_attempts,
	max_views, view_count, ttl_seconds, created_at, expires_at, last_viewed_at`

// SQLiteStore is the SQLite implementation of MetadataStore.
type SQLiteStore struct {
	db  *DB
	now func() time.Time
}

// NewSQLiteStore creates a SQLiteStore backed by the given DB.
func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// InsertIfAbsent inserts the row unless the slug already exists.
func (r *SQLiteStore) InsertIfAbsent(ctx context.Context, s *models.Secret) (bool, error) {
	const query = `INSERT INTO secrets (` + secretColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO NOTHING`

	res, err := r.db.Writer.ExecContext(ctx, query,
		s.Slug,
		s.OwnerID,
		s.IV,
		s.AuthTag,
		nullString(s.PasswordHash),
		s.MaxFailedAttempts,
		s.FailedAttempts,
		s.MaxViews,
		s.ViewCount,
		s.TTLSeconds,
		formatTime(s.CreatedAt),
		formatTime(s.ExpiresAt),
		nullTime(s.LastViewedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert secret %q: %w", s.Slug, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert secret %q: rows affected: %w", s.Slug, err)
	}
	return n == 1, nil
}

// Get returns the row for slug, or ErrNotFound.
func (r *SQLiteStore) Get(ctx context.Context, slug string) (*models.Secret, error) {
	const query = `SELECT ` + secretColumns + ` FROM secrets WHERE slug = ?`

	s, err := scanSecret(r.db.Reader.QueryRowContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get secret %q: %w", slug, err)
	}
	return s, nil
}

// ConditionalIncrement bumps the counter in one UPDATE guarded by the bound.
// The statement either matches the row and increments it or matches nothing,
// so concurrent callers are ordered by SQLite, not by us. A view is never
// claimed on a locked-out row.
func (r *SQLiteStore) ConditionalIncrement(ctx context.Context, slug string, counter Counter, upperBound int) (Claim, error) {
	var row *sql.Row
	switch counter {
	case ViewCount:
		const query = `UPDATE secrets
			SET view_count = view_count + 1, last_viewed_at = ?
			WHERE slug = ? AND view_count < ? AND failed_attempts < max_failed_attempts
			RETURNING view_count`
		row = r.db.Writer.QueryRowContext(ctx, query, formatTime(r.now()), slug, upperBound)
	case FailedAttempts:
		const query = `UPDATE secrets
			SET failed_attempts = failed_attempts + 1
			WHERE slug = ? AND failed_attempts < ?
			RETURNING failed_attempts`
		row = r.db.Writer.QueryRowContext(ctx, query, slug, upperBound)
	default:
		return Claim{}, fmt.Errorf("increment %q on secret %q: unknown counter", counter, slug)
	}

	var value int
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return Claim{}, nil
	}
	if err != nil {
		return Claim{}, fmt.Errorf("increment %s on secret %q: %w", counter, slug, err)
	}
	return Claim{Won: true, Value: value}, nil
}

// Delete removes the row. No-op if it does not exist.
func (r *SQLiteStore) Delete(ctx context.Context, slug string) error {
	const query = `DELETE FROM secrets WHERE slug = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, slug); err != nil {
		return fmt.Errorf("delete secret %q: %w", slug, err)
	}
	return nil
}

// ListByOwner returns the owner's secrets, newest first.
func (r *SQLiteStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Secret, error) {
	const query = `SELECT ` + secretColumns + ` FROM secrets WHERE owner_id = ? ORDER BY created_at DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	var result []models.Secret
	for rows.Next() {
		s, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate secrets: %w", err)
	}
	return result, nil
}

// ListStale returns up to limit slugs that are expired, exhausted or locked.
func (r *SQLiteStore) ListStale(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const query = `SELECT slug FROM secrets
		WHERE expires_at <= ? OR view_count >= max_views OR failed_attempts >= max_failed_attempts
		ORDER BY expires_at
		LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale secrets: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan stale secret: %w", err)
		}
		slugs = append(slugs, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale secrets: %w", err)
	}
	return slugs, nil
}

func (r *SQLiteStore) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSecret(row rowScanner) (*models.Secret, error) {
	var (
		s            models.Secret
		passwordHash sql.NullString
		createdAt    string
		expiresAt    string
		lastViewedAt sql.NullString
	)
	err := row.Scan(
		&s.Slug,
		&s.OwnerID,
		&s.IV,
		&s.AuthTag,
		&passwordHash,
		&s.MaxFailedAttempts,
		&s.FailedAttempts,
		&s.MaxViews,
		&s.ViewCount,
		&s.TTLSeconds,
		&createdAt,
		&expiresAt,
		&lastViewedAt,
	)
	if err != nil {
		return nil, err
	}

	s.PasswordHash = passwordHash.String
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for secret %q: %w", s.Slug, err)
	}
	if s.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at for secret %q: %w", s.Slug, err)
	}
	if lastViewedAt.Valid {
		t, err := parseTime(lastViewedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_viewed_at for secret %q: %w", s.Slug, err)
		}
		s.LastViewedAt = &t
	}
	return &s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
