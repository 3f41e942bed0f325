package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spigot/spigot/internal/core/engine"
	apperrors "github.com/spigot/spigot/internal/errors"
	"github.com/spigot/spigot/internal/observability"
	"github.com/spigot/spigot/internal/server/handlers"
	servermw "github.com/spigot/spigot/internal/server/middleware"
)

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes() {
	// Health endpoints: /health is a cheap liveness check, /health/full runs
	// the dependency probes. Neither is rate limited so orchestrators are
	// never locked out.
	s.router.Get("/health", s.deps.Health.Liveness)
	s.router.Get("/health/full", s.deps.Health.Full)

	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	// Public API, rate limited per route class. The faucet class is the
	// strictest gate; status polling gets a wider budget so clients can watch
	// their request progress.
	s.router.Route("/api", func(r chi.Router) {
		r.With(servermw.RateLimit(s.deps.Limiter, engine.RouteFaucet)).
			Post("/request", s.deps.Faucet.Request)

		r.With(servermw.RateLimit(s.deps.Limiter, engine.RouteStatus)).
			Get("/status/{id}", s.deps.Faucet.Status)
		r.With(servermw.RateLimit(s.deps.Limiter, engine.RouteStatus)).
			Get("/cooldown/{address}", s.deps.Faucet.Cooldown)

		r.With(servermw.RateLimit(s.deps.Limiter, engine.RouteAPI)).
			Get("/stats", s.deps.Faucet.Stats)
	})

	s.registerAdminRoutes()
}

// registerAdminRoutes mounts the operator surface when a token is configured.
func (s *Server) registerAdminRoutes() {
	logger := observability.ServerLogger

	if s.deps.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin endpoints disabled (no admin token configured)")
		}
		return
	}

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(bearerAuth(s.deps.AdminToken))
		r.Use(servermw.RateLimit(s.deps.Limiter, engine.RouteAdmin))

		r.Get("/config", s.deps.Admin.GetConfig)
		r.Put("/config", s.deps.Admin.PutConfig)
		r.Get("/queue", s.deps.Admin.GetQueue)
		r.Get("/blacklist", s.deps.Admin.GetBlacklist)
		r.Post("/blacklist", s.deps.Admin.AddBlacklist)
		r.Delete("/blacklist/{address}", s.deps.Admin.RemoveBlacklist)
	})

	if logger != nil {
		logger.Info("Admin endpoints enabled",
			zap.String("path", "/admin"),
			zap.String("auth", "bearer token"))
		logger.Warn("Admin endpoints enabled - ensure this server is not exposed to public internet")
	}
}

// bearerAuth rejects requests whose Authorization header does not carry the
// configured token. Comparison is constant time.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				HandleError(w, r, apperrors.NewUnauthorizedError("a valid bearer token is required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
