package api

import (
	"net/http"
	"time"

	"github.com/Izume01/reliq/config"
	"github.com/Izume01/reliq/internal/lifecycle"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRouter builds the HTTP API. With a nil identity the caller is taken
// from cfg.Auth: the identity header when it is trusted, otherwise every
// caller is anonymous and the owner endpoints answer 401.
func SetupRouter(svc *lifecycle.Service, opener TransportOpener, cfg *config.Config, identity IdentityFunc) *chi.Mux {
	allowedHeaders := []string{"Content-Type", RequestIDHeader}
	if identity == nil {
		identity = Anonymous
		if cfg.Auth.TrustIdentityHeader {
			identity = HeaderIdentity(cfg.Auth.IdentityHeader)
			allowedHeaders = append(allowedHeaders, cfg.Auth.IdentityHeader)
		}
	}
	h := NewHandler(svc, opener, cfg, identity)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// CORS
	r.Use(CORS(CORSConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: allowedHeaders,
		MaxAge:         86400,
	}))

	// Health
	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		revealLimit := passthrough
		if cfg.RateLimit.Enabled {
			r.Use(NewRateLimiter(cfg.RateLimit.RequestsPerMin, time.Minute).Middleware)
			revealLimit = NewRateLimiter(cfg.RateLimit.RevealPerMin, time.Minute).Middleware
		}
		r.Use(JSONOnly)

		r.Route("/secrets", func(r chi.Router) {
			r.Post("/", h.CreateSecret)
			r.Get("/", h.ListSecrets)
			r.Get("/{slug}", h.GetStatus)
			r.Delete("/{slug}", h.RevokeSecret)
			r.With(revealLimit).Post("/{slug}/reveal", h.RevealSecret)
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}
