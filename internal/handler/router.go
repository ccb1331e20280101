/*
Package handler provides the HTTP handlers and routing setup for the collaboration server.

This file defines the main Router, applying middleware like logging, CORS and IP-based
rate limiting before delegating requests to the REST and WebSocket handlers.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"bpmncollab/internal/pkg/auth/jwt"
	"bpmncollab/internal/pkg/limiter"
	"bpmncollab/internal/pkg/logx"
	"bpmncollab/internal/pkg/metrics"
	"bpmncollab/internal/pkg/resp"
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
func Router(deps *AppDeps) http.Handler {
	joinLimiter := limiter.NewIPRateLimiter(rate.Limit(deps.Config.JoinRate), deps.Config.JoinBurst)
	identityLimiter := limiter.NewIPRateLimiter(rate.Limit(deps.Config.JoinRate), deps.Config.JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", HandleHealth(deps))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.With(identityLimiter.Middleware).Post("/identity", HandleIdentity(deps))

		api.Post("/sessions", HandleCreateSession(deps))
		api.Get("/sessions/{id}", HandleGetSession(deps))
	})

	r.With(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret)).
		Get("/ws", HandleWebSocket(deps, wsUpgrader, joinLimiter))

	return r
}

// HandleHealth reports liveness together with the engine's live counts.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logx.Debug("Health check endpoint hit")

		resp.RespondSuccess(w, r, map[string]any{
			"status":      "ok",
			"service":     "BPMN Collaboration Server",
			"sessions":    deps.Registry.SessionCount(),
			"connections": deps.Registry.TotalConnections(),
		})
	}
}
