// Task 8.9: Route registration and go-chi router setup.
// Public routes (/health, /auth/*) and JWT-protected routes (/api/v1/*).
package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/api/handlers"
	apmiddleware "github.com/synapselabs/synapse/internal/api/middleware"
	domainauth "github.com/synapselabs/synapse/internal/domain/auth"
	"github.com/synapselabs/synapse/internal/domain/reflex"
	"github.com/synapselabs/synapse/internal/domain/telemetry"
	"github.com/synapselabs/synapse/internal/infra/gateway"
	"github.com/synapselabs/synapse/internal/realtime"
)

// Deps bundles the already-wired application services the router exposes.
// Construction and lifecycle live in internal/server; the router only routes.
type Deps struct {
	DB        *sql.DB
	Log       zerolog.Logger
	Gateway   *gateway.Gateway
	Realtime  *realtime.Router
	Reflex    *reflex.Processor
	Telemetry *telemetry.Recorder
}

// NewRouter creates and configures a chi router with all routes.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apmiddleware.RequestLogger(deps.Log))
	r.Use(middleware.Recoverer)

	// ===== PUBLIC ROUTES (no auth required) =====

	// Health check — unauthenticated, used by load balancers and health probes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	// Auth endpoints — public, no JWT required
	authHandler := handlers.NewAuthHandler(domainauth.NewAuthService(deps.DB, deps.Log))
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register) // POST /auth/register
		r.Post("/login", authHandler.Login)       // POST /auth/login
	})

	// ===== PROTECTED ROUTES (JWT required via AuthMiddleware) =====

	// All /api/v1/* routes require a valid Bearer JWT token.
	// AuthMiddleware validates the token and injects UserID + WorkspaceID into context.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apmiddleware.AuthMiddleware)

		chatHandler := handlers.NewChatHandler(deps.Gateway)
		r.Post("/chat", chatHandler.Chat) // POST /api/v1/chat

		streamHandler := handlers.NewStreamHandler(deps.Realtime)
		r.Route("/stream", func(r chi.Router) {
			r.Get("/", streamHandler.Stream)                       // GET  /api/v1/stream
			r.Post("/{connectionID}/request", streamHandler.Request) // POST /api/v1/stream/{connectionID}/request
		})

		reflexHandler := handlers.NewReflexHandler(deps.Reflex)
		r.Get("/reflex/status", reflexHandler.Status) // GET /api/v1/reflex/status

		telemetryHandler := handlers.NewTelemetryHandler(deps.Telemetry)
		r.Get("/telemetry/events", telemetryHandler.ListEvents) // GET /api/v1/telemetry/events
	})

	return r
}
