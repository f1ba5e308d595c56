package main

import (
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/voyplan/voyplan-api/pkg/middleware"
	"github.com/voyplan/voyplan-api/pkg/observability"
)

// SetupRouter wires every route behind the middleware chain.
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()
	h := newHandlers(deps)

	mux.HandleFunc("POST /trips", h.handleCreateTrip)
	mux.HandleFunc("GET /trips/{id}/itinerary", h.handleGetItinerary)
	mux.HandleFunc("POST /trips/{id}/plan", h.handlePlanTrip)
	mux.HandleFunc("POST /trips/{id}/fast-draft", h.handleFastDraft)
	mux.HandleFunc("POST /trips/{id}/days/{day}/changes", h.handleDayChanges)
	mux.HandleFunc("POST /trips/{id}/replacements/options", h.handleReplacementOptions)
	mux.HandleFunc("POST /trips/{id}/replacements/apply", h.handleReplacementApply)
	mux.HandleFunc("POST /trips/{id}/chat", h.handleChat)
	mux.HandleFunc("POST /trips/{id}/saved", h.handleSaveTrip)
	mux.HandleFunc("GET /saved-trips", h.handleListSavedTrips)
	mux.HandleFunc("DELETE /saved-trips/{id}", h.handleDeleteSavedTrip)

	registerUtilityRoutes(mux, deps)

	if len(deps.Config.Auth.JWTSecret) == 0 {
		deps.Logger.Warn("JWT secret is empty; bearer tokens will be rejected")
	}

	var handler http.Handler = mux
	handler = observability.Metrics(handler)
	handler = middleware.Auth([]byte(deps.Config.Auth.JWTSecret))(handler)
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		handler = middleware.RateLimit(limiter)(handler)
	}
	handler = middleware.Logging(deps.Logger)(handler)
	handler = middleware.Recover(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"Idempotency-Key",
			"X-Device-ID",
			"X-Request-ID",
		},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})
	return corsHandler.Handler(handler)
}

// registerUtilityRoutes adds health, readiness and metrics endpoints.
func registerUtilityRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if deps.DB != nil {
			if err := deps.DB.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("database unhealthy"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.Handle("GET /metrics", observability.Handler())
}
