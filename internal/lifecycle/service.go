// Package lifecycle owns the state transitions of a stored secret across the
// metadata store and the ciphertext store. It guarantees a secret is read at
// most MaxViews times, survives at most MaxFailedAttempts wrong passwords,
// and never outlives its TTL, under any number of concurrent callers.
//
// No in-process state is shared between calls. Every counter change is a
// single conditional update in the metadata store; the engine never reads a
// counter and writes it back.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/Izume01/reliq/internal/models"
	"github.com/Izume01/reliq/internal/store"
)

// cleanupTimeout bounds best-effort purges, which run detached from the
// caller's cancellation.
const cleanupTimeout = 5 * time.Second

// PasswordGate hashes and verifies passwords.
type PasswordGate interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// Opener authenticates and decrypts a stored payload.
type Opener interface {
	Open(ciphertext []byte, ivHex, tagHex string) ([]byte, error)
}

// Service is the secret lifecycle engine.
type Service struct {
	meta      store.MetadataStore
	blobs     store.CiphertextStore
	passwords PasswordGate
	cipher    Opener
	policy    Policy
	slugs     *SlugAllocator
	now       func() time.Time
}

func NewService(
	meta store.MetadataStore,
	blobs store.CiphertextStore,
	passwords PasswordGate,
	cipher Opener,
	policy Policy,
) *Service {
	return &Service{
		meta:      meta,
		blobs:     blobs,
		passwords: passwords,
		cipher:    cipher,
		policy:    policy,
		slugs:     NewSlugAllocator(meta),
		now:       time.Now,
	}
}

func (s *Service) Policy() Policy {
	return s.policy
}

// CreateRequest carries an already-encrypted payload and its limits.
type CreateRequest struct {
	Ciphertext        []byte
	IV                string // hex
	AuthTag           string // hex
	TTLSeconds        int
	MaxFailedAttempts int
	MaxViews          int
	Password          string // optional plaintext, hashed before storage
	OwnerID           string
}

type CreateResult struct {
	Slug       string
	TTLSeconds int
	ExpiresAt  time.Time
}

// Create validates req, stores the metadata row under a fresh slug and then
// the ciphertext. If the ciphertext write fails the row is removed on a
// best-effort basis; a row left behind has no ciphertext and reads as
// expired, so it can never be over-read.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := s.policy.Validate(&req); err != nil {
		return nil, err
	}

	var passwordHash string
	if req.Password != "" {
		hash, err := s.passwords.Hash(req.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = hash
	}

	now := s.now().UTC()
	ttl := time.Duration(req.TTLSeconds) * time.Second
	secret := &models.Secret{
		OwnerID:           req.OwnerID,
		IV:                req.IV,
		AuthTag:           req.AuthTag,
		PasswordHash:      passwordHash,
		MaxFailedAttempts: req.MaxFailedAttempts,
		MaxViews:          req.MaxViews,
		TTLSeconds:        req.TTLSeconds,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}

	slug, err := s.slugs.Allocate(ctx, secret)
	if err != nil {
		if errors.Is(err, ErrAllocationExhausted) {
			clog.FromContext(ctx).Error("slug allocation exhausted", "attempts", MaxSlugAttempts)
		}
		return nil, err
	}

	if err := s.blobs.Put(ctx, slug, req.Ciphertext, ttl); err != nil {
		s.purge(ctx, slug, "ciphertext write failed")
		return nil, unavailable("put ciphertext", err)
	}

	clog.FromContext(ctx).Info("secret created",
		"slug", slug,
		"ttl_seconds", req.TTLSeconds,
		"max_views", req.MaxViews,
		"password_required", passwordHash != "",
	)

	return &CreateResult{
		Slug:       slug,
		TTLSeconds: req.TTLSeconds,
		ExpiresAt:  secret.ExpiresAt,
	}, nil
}

// Revealed is a successful read.
type Revealed struct {
	Content        []byte
	ViewCount      int
	MaxViews       int
	ViewsRemaining int
	Exhausted      bool
}

// Retrieve runs the read state machine: load, reject terminal rows, gate on
// the password, fetch, claim one view, decrypt, and self-destruct on the
// final view. The ciphertext is fetched before the claim, so every claim
// that wins is served and a missing or unreachable ciphertext spends no
// view. A claimed view is spent even if decryption fails.
func (s *Service) Retrieve(ctx context.Context, slug, password string) (*Revealed, error) {
	secret, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}

	if err := s.rejectTerminal(ctx, secret); err != nil {
		return nil, err
	}

	if secret.PasswordRequired() {
		if err := s.checkPassword(ctx, secret, password); err != nil {
			return nil, err
		}
	}

	ciphertext, err := s.blobs.Get(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		s.purge(ctx, slug, "ciphertext missing")
		return nil, ErrExpired
	}
	if err != nil {
		return nil, unavailable("get ciphertext", err)
	}

	// The claim is one statement: it either commits or it doesn't, so a
	// cancelled caller can never leave a view claimed but unserved. It also
	// refuses a row that was locked out after we loaded it.
	claim, err := s.meta.ConditionalIncrement(ctx, slug, store.ViewCount, secret.MaxViews)
	if err != nil {
		return nil, unavailable("claim view", err)
	}
	if !claim.Won {
		return nil, s.refusedClaim(ctx, slug)
	}

	exhausted := claim.Value >= secret.MaxViews
	if exhausted {
		s.purge(ctx, slug, "final view")
	}

	content, err := s.cipher.Open(ciphertext, secret.IV, secret.AuthTag)
	if err != nil {
		clog.FromContext(ctx).Error("stored ciphertext failed authentication", "slug", slug, "error", err)
		return nil, ErrDecryptionFailed
	}

	return &Revealed{
		Content:        content,
		ViewCount:      claim.Value,
		MaxViews:       secret.MaxViews,
		ViewsRemaining: max(secret.MaxViews-claim.Value, 0),
		Exhausted:      exhausted,
	}, nil
}

// refusedClaim reports why a view claim matched no row and purges it. The
// row may have run out of views, been locked out, or already be gone.
func (s *Service) refusedClaim(ctx context.Context, slug string) error {
	err := ErrExhausted
	if current, getErr := s.meta.Get(ctx, slug); getErr == nil && current.LockedOut() {
		err = ErrLockedOut
	}
	s.purge(ctx, slug, "view claim refused")
	return err
}

// checkPassword gates the read. A wrong guess is charged with a conditional
// increment so concurrent guesses can never exceed the budget.
func (s *Service) checkPassword(ctx context.Context, secret *models.Secret, password string) error {
	if password == "" {
		return ErrPasswordRequired
	}

	ok, err := s.passwords.Verify(password, secret.PasswordHash)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	claim, err := s.meta.ConditionalIncrement(ctx, secret.Slug, store.FailedAttempts, secret.MaxFailedAttempts)
	if err != nil {
		return unavailable("record failed attempt", err)
	}
	if !claim.Won {
		s.purge(ctx, secret.Slug, "locked out")
		return ErrLockedOut
	}

	remaining := max(secret.MaxFailedAttempts-claim.Value, 0)
	if remaining == 0 {
		clog.FromContext(ctx).Info("secret locked out", "slug", secret.Slug)
		s.purge(ctx, secret.Slug, "locked out")
	}
	return &AttemptError{Remaining: remaining}
}

// Revoke destroys a secret on behalf of its owner. A missing slug is
// ErrNotFound whether it never existed or is already gone.
func (s *Service) Revoke(ctx context.Context, slug, ownerID string) error {
	secret, err := s.load(ctx, slug)
	if err != nil {
		return err
	}
	if ownerID == "" || secret.OwnerID != ownerID {
		return ErrForbidden
	}

	if err := s.blobs.Delete(ctx, slug); err != nil {
		return unavailable("delete ciphertext", err)
	}
	if err := s.meta.Delete(ctx, slug); err != nil {
		return unavailable("delete secret", err)
	}

	clog.FromContext(ctx).Info("secret revoked", "slug", slug)
	return nil
}

// Status describes a secret without consuming a view or an attempt.
type Status struct {
	PasswordRequired bool
	TTLRemaining     time.Duration
}

// Status lets a reader learn whether a password prompt is needed. Terminal
// secrets found along the way are purged.
func (s *Service) Status(ctx context.Context, slug string) (*Status, error) {
	secret, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := s.rejectTerminal(ctx, secret); err != nil {
		return nil, err
	}

	ttl, err := s.blobs.TimeToLive(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		s.purge(ctx, slug, "ciphertext missing")
		return nil, ErrExpired
	}
	if err != nil {
		return nil, unavailable("ttl ciphertext", err)
	}

	return &Status{PasswordRequired: secret.PasswordRequired(), TTLRemaining: ttl}, nil
}

// List returns the owner's secrets with the live TTL of each ciphertext.
func (s *Service) List(ctx context.Context, ownerID string) ([]models.Summary, error) {
	if ownerID == "" {
		return nil, ErrForbidden
	}

	secrets, err := s.meta.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, unavailable("list secrets", err)
	}

	out := make([]models.Summary, 0, len(secrets))
	for _, secret := range secrets {
		summary := models.Summary{Secret: secret, PasswordRequired: secret.PasswordRequired()}

		ttl, err := s.blobs.TimeToLive(ctx, secret.Slug)
		switch {
		case errors.Is(err, store.ErrNotFound):
			summary.Expired = true
		case err != nil:
			return nil, unavailable("ttl ciphertext", err)
		default:
			summary.TTLRemaining = ttl
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, slug string) (*models.Secret, error) {
	if slug == "" {
		return nil, ErrNotFound
	}
	secret, err := s.meta.Get(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get secret", err)
	}
	return secret, nil
}

// rejectTerminal repairs and reports rows whose limits are already spent,
// e.g. when an earlier purge failed. A row past its expiry is rejected here
// so that expiry never touches the view counter.
func (s *Service) rejectTerminal(ctx context.Context, secret *models.Secret) error {
	switch {
	case secret.Exhausted():
		s.purge(ctx, secret.Slug, "exhausted")
		return ErrExhausted
	case secret.LockedOut():
		s.purge(ctx, secret.Slug, "locked out")
		return ErrLockedOut
	case !s.now().Before(secret.ExpiresAt):
		s.purge(ctx, secret.Slug, "expired")
		return ErrExpired
	}
	return nil
}

// purge deletes both store entries. Failures are logged, not returned: the
// caller's outcome is already decided, and the sweeper retries later.
func (s *Service) purge(ctx context.Context, slug, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	log := clog.FromContext(ctx).With("slug", slug, "reason", reason)
	if err := s.blobs.Delete(ctx, slug); err != nil {
		log.Warn("purge ciphertext failed", "error", err)
	}
	if err := s.meta.Delete(ctx, slug); err != nil {
		log.Warn("purge metadata failed", "error", err)
	}
	log.Debug("secret purged")
}
