package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/academy-hub/app"
	"github.com/upb/academy-hub/handlers"
	"github.com/upb/academy-hub/middleware"
	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(deps.Metrics))

	// Session cookies travel cross-origin only to the configured front ends
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The live feed is long-lived and stays outside the request timeout
	r.Get("/api/session/live", deps.LiveHandler.HandleLive)

	r.Group(func(r chi.Router) {
		if cfg.Server.RequestTimeout > 0 {
			r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		}

		// Health check endpoints
		r.Get("/healthz", deps.HealthHandler.HandleHealth)
		r.Get("/readyz", deps.HealthHandler.HandleReadiness)
		if deps.Registry != nil {
			r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
		}

		r.Get("/.well-known/jwks.json", deps.AuthHandler.HandleJWKS)

		r.Route("/api", func(r chi.Router) {
			r.Get("/config", handlers.HandleClientConfig(cfg.Client))

			// Session lifecycle
			r.Post("/login", deps.AuthHandler.HandleLogin)
			r.Post("/logout", deps.AuthHandler.HandleLogout)
			r.Get("/session", deps.AuthHandler.HandleSession)
			r.Post("/auth/sign-in", deps.AuthHandler.HandleSignIn)

			r.Route("/preferences", func(r chi.Router) {
				r.Get("/currency", deps.PreferencesHandler.HandleGetCurrency)
				r.Put("/currency", deps.PreferencesHandler.HandlePutCurrency)
			})

			// Super-admin operations
			r.Route("/super-admin", func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireSession)
				r.Use(deps.AuthMiddleware.RequireRole(models.RoleSuperAdmin))
				r.Post("/update-password", deps.AccountHandler.HandleUpdatePassword)
				r.Post("/security-rules", deps.RulesHandler.HandleGenerate)
			})
		})

		// Dashboard shells
		for _, role := range models.Roles() {
			r.With(deps.Guard.Require(role)).Get(role.HomePath(), handlers.HandleDashboardShell)
		}
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
