// Package routes assembles the chi router for the gateway.
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/llmfallback/llmfallback/app"
	"github.com/llmfallback/llmfallback/handlers"
	"github.com/llmfallback/llmfallback/middleware"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(deps.Config.Server.WriteTimeout))
	r.Use(propagateRequestID)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	completionHandler := handlers.NewCompletionHandler(deps.Router, deps.Recorder, deps.Logger)
	modelsHandler := handlers.NewModelsHandler(deps.Router, deps.Logger)
	healthHandler := handlers.NewHealthHandler(healthPinger(deps), deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.Router, deps.Requests, deps.Recorder, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// Inference surface (OpenAI-compatible)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/completions", completionHandler.HandleChatCompletion)
		r.Get("/models", modelsHandler.HandleListModels)
	})

	// Operator surface (require admin role)
	r.Route("/admin", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Use(deps.AuthMiddleware.RequireRole("admin"))
		r.Get("/health/models", adminHandler.HandleModelHealth)
		r.Post("/health/reset", adminHandler.HandleResetHealth)
		r.Get("/requests", adminHandler.HandleListRequests)
		r.Get("/requests/{id}", adminHandler.HandleGetRequest)
		r.Get("/stats", adminHandler.HandleStats)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}

// propagateRequestID copies chi's request ID into the application context key
// so handlers and middleware log a consistent ID
func propagateRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if requestID := chimiddleware.GetReqID(ctx); requestID != "" {
			ctx = middleware.WithRequestID(ctx, requestID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// healthPinger returns the readiness pinger, keeping the nil check in one place
func healthPinger(deps *app.Dependencies) handlers.Pinger {
	if deps.DB == nil {
		return nil
	}
	return deps.DB
}
