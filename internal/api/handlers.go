package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"

	"github.com/Izume01/reliq/config"
	"github.com/Izume01/reliq/internal/lifecycle"
	"github.com/Izume01/reliq/internal/models"
)

// TransportOpener decrypts passwords sealed by the client for transport.
type TransportOpener interface {
	OpenTransport(payload string) (string, error)
}

type Handler struct {
	svc      *lifecycle.Service
	opener   TransportOpener
	config   *config.Config
	identity IdentityFunc
}

func NewHandler(svc *lifecycle.Service, opener TransportOpener, cfg *config.Config, identity IdentityFunc) *Handler {
	return &Handler{
		svc:      svc,
		opener:   opener,
		config:   cfg,
		identity: identity,
	}
}

// CreateRequest is the create body. Content is the hex ciphertext; absent
// options take the configured defaults.
type CreateRequest struct {
	Content           string `json:"content"`
	IV                string `json:"iv"`
	Tag               string `json:"tag"`
	TTLSeconds        *int   `json:"ttl_seconds,omitempty"`
	MaxFailedAttempts *int   `json:"max_failed_attempts,omitempty"`
	MaxViews          *int   `json:"max_views,omitempty"`
	Password          string `json:"password,omitempty"`
	EncryptedPassword string `json:"encrypted_password,omitempty"`
}

type CreateResponse struct {
	Slug       string    `json:"slug"`
	URL        string    `json:"url"`
	TTLSeconds int       `json:"ttl_seconds"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type RevealRequest struct {
	Password          string `json:"password,omitempty"`
	EncryptedPassword string `json:"encrypted_password,omitempty"`
}

type RevealResponse struct {
	Content        string `json:"content"`
	ViewCount      int    `json:"view_count"`
	MaxViews       int    `json:"max_views"`
	ViewsRemaining int    `json:"views_remaining"`
	Exhausted      bool   `json:"exhausted"`
}

type StatusResponse struct {
	Slug             string `json:"slug"`
	PasswordRequired bool   `json:"password_required"`
	TTLSeconds       int    `json:"ttl_seconds"`
}

type SecretSummary struct {
	models.Summary
	TTLRemainingSeconds int `json:"ttl_remaining_seconds"`
}

type ListResponse struct {
	Secrets []SecretSummary `json:"secrets"`
}

type ErrorResponse struct {
	Error             string `json:"error"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateSecret(w http.ResponseWriter, r *http.Request) {
	owner := h.identity(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ciphertext, err := hex.DecodeString(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, "content must be hex encoded")
		return
	}

	password, ok := h.password(w, req.Password, req.EncryptedPassword)
	if !ok {
		return
	}

	policy := h.svc.Policy()
	res, err := h.svc.Create(r.Context(), lifecycle.CreateRequest{
		Ciphertext:        ciphertext,
		IV:                req.IV,
		AuthTag:           req.Tag,
		TTLSeconds:        orDefault(req.TTLSeconds, policy.DefaultTTLSeconds),
		MaxFailedAttempts: orDefault(req.MaxFailedAttempts, policy.DefaultMaxFailedAttempts),
		MaxViews:          orDefault(req.MaxViews, policy.DefaultMaxViews),
		Password:          password,
		OwnerID:           owner,
	})
	if err != nil {
		h.handleLifecycleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateResponse{
		Slug:       res.Slug,
		URL:        h.config.Server.BaseURL + "/s/" + res.Slug,
		TTLSeconds: res.TTLSeconds,
		ExpiresAt:  res.ExpiresAt,
	})
}

func (h *Handler) RevealSecret(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req RevealRequest
	if err := h.decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	password, ok := h.password(w, req.Password, req.EncryptedPassword)
	if !ok {
		return
	}

	got, err := h.svc.Retrieve(r.Context(), slug, password)
	if err != nil {
		h.handleLifecycleError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, RevealResponse{
		Content:        string(got.Content),
		ViewCount:      got.ViewCount,
		MaxViews:       got.MaxViews,
		ViewsRemaining: got.ViewsRemaining,
		Exhausted:      got.Exhausted,
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	st, err := h.svc.Status(r.Context(), slug)
	if err != nil {
		h.handleLifecycleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Slug:             slug,
		PasswordRequired: st.PasswordRequired,
		TTLSeconds:       int(st.TTLRemaining / time.Second),
	})
}

func (h *Handler) ListSecrets(w http.ResponseWriter, r *http.Request) {
	owner := h.identity(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	summaries, err := h.svc.List(r.Context(), owner)
	if err != nil {
		h.handleLifecycleError(w, r, err)
		return
	}

	resp := ListResponse{Secrets: make([]SecretSummary, 0, len(summaries))}
	for _, s := range summaries {
		resp.Secrets = append(resp.Secrets, SecretSummary{
			Summary:             s,
			TTLRemainingSeconds: int(s.TTLRemaining / time.Second),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RevokeSecret(w http.ResponseWriter, r *http.Request) {
	owner := h.identity(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.svc.Revoke(r.Context(), chi.URLParam(r, "slug"), owner); err != nil {
		h.handleLifecycleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body bounded by the payload limit. Hex content is
// twice the ciphertext size, plus room for the other fields.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	limit := int64(h.svc.Policy().MaxPayloadBytes)*2 + 4096
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// password resolves a plain or transport-encrypted password. It writes the
// error response itself and reports false when the request must stop.
func (h *Handler) password(w http.ResponseWriter, plain, encrypted string) (string, bool) {
	if encrypted == "" {
		return plain, true
	}
	if plain != "" {
		writeError(w, http.StatusBadRequest, "send either password or encrypted_password")
		return "", false
	}
	pw, err := h.opener.OpenTransport(encrypted)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid encrypted password")
		return "", false
	}
	return pw, true
}

func (h *Handler) handleLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		attempt    *lifecycle.AttemptError
		validation *lifecycle.ValidationError
	)
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		writeError(w, http.StatusNotFound, "secret not found")
	case errors.Is(err, lifecycle.ErrExhausted):
		writeError(w, http.StatusGone, lifecycle.ErrExhausted.Error())
	case errors.Is(err, lifecycle.ErrExpired):
		writeError(w, http.StatusGone, lifecycle.ErrExpired.Error())
	case errors.Is(err, lifecycle.ErrLockedOut):
		writeError(w, http.StatusLocked, lifecycle.ErrLockedOut.Error())
	case errors.As(err, &attempt):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:             lifecycle.ErrInvalidPassword.Error(),
			AttemptsRemaining: &attempt.Remaining,
		})
	case errors.Is(err, lifecycle.ErrPasswordRequired):
		writeError(w, http.StatusBadRequest, lifecycle.ErrPasswordRequired.Error())
	case errors.Is(err, lifecycle.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, lifecycle.ErrUnavailable):
		clog.FromContext(r.Context()).Error("store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		clog.FromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
