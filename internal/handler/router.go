package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/whatsapp-inbox/internal/middleware"
	"github.com/capitalize-ai/whatsapp-inbox/internal/service"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/logger"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string
	// Readiness checks by name, e.g. "store", "nats".
	Checks map[string]Pinger
}

// NewRouter builds the inbox API.
func NewRouter(ctrl *service.HandoffController, log *logger.Logger, cfg RouterConfig) http.Handler {
	healthHandler := NewHealthHandler(cfg.Checks)
	conversationHandler := NewConversationHandler(ctrl, log)
	messageHandler := NewMessageHandler(ctrl, log)
	lifecycleHandler := NewLifecycleHandler(ctrl, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.Identify)
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.OperatorRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Post("/select", conversationHandler.Select)
				r.Patch("/mark-read", conversationHandler.MarkRead)
				r.Patch("/ai", conversationHandler.ToggleAI)
				r.Post("/ai/reply", conversationHandler.AIReply)
				r.Patch("/assign", conversationHandler.Assign)
				r.Patch("/favorite", conversationHandler.Favorite)
				r.Post("/tags", conversationHandler.AddTag)
				r.Post("/notes", conversationHandler.AddNote)
				r.Get("/draft", conversationHandler.GetDraft)
				r.Put("/draft", conversationHandler.PutDraft)
				r.With(middleware.RequireScope(middleware.ScopeChannel)).Post("/inbound", conversationHandler.Inbound)

				// Messages
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Compose)

				// Lifecycle
				r.Post("/lifecycle", lifecycleHandler.Request)
				r.Post("/lifecycle/confirm", lifecycleHandler.Confirm)
				r.Delete("/lifecycle/{token}", lifecycleHandler.Cancel)

				r.Get("/schedule", lifecycleHandler.ListScheduled)
				r.Post("/schedule", lifecycleHandler.Schedule)
				r.Get("/events", lifecycleHandler.Events)
			})
		})

		r.Route("/messages/{id}", func(r chi.Router) {
			r.Patch("/", messageHandler.Edit)
			r.Delete("/", messageHandler.Delete)
			r.Post("/reactions", messageHandler.AddReaction)
			r.Delete("/reactions/{emoji}", messageHandler.RemoveReaction)
		})
	})

	return r
}
