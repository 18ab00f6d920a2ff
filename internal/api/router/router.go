package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hampstead-renovations/voice-agent/internal/http/handlers"
	httpmiddleware "github.com/hampstead-renovations/voice-agent/internal/http/middleware"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	Health             *handlers.HealthHandler
	WhatsAppWebhook    *handlers.WhatsAppWebhookHandler
	VoiceWebhook       *handlers.VoiceWebhookHandler
	AdminFlags         *handlers.AdminFlagsHandler
	AdminConversations *handlers.AdminConversationsHandler
	AdminLeads         *handlers.AdminLeadsHandler

	RateLimiter     *httpmiddleware.RateLimiter
	AdminAuthSecret string
	MetricsHandler  http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}

	// Public endpoints (webhooks, health, metrics)
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Check)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WhatsAppWebhook != nil {
			public.Post("/webhooks/whatsapp", cfg.WhatsAppWebhook.Receive)
		}
		if cfg.VoiceWebhook != nil {
			public.Route("/webhooks/voice", func(voice chi.Router) {
				voice.Post("/turn", cfg.VoiceWebhook.Turn)
				voice.Post("/call-ended", cfg.VoiceWebhook.CallEnded)
			})
		}
	})

	// Admin routes, JWT protected
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

			if cfg.AdminFlags != nil {
				admin.Get("/flags", cfg.AdminFlags.ListPending)
				admin.Post("/flags/{flagID}/review", cfg.AdminFlags.MarkReviewed)
			}
			if cfg.AdminConversations != nil {
				admin.Get("/conversations", cfg.AdminConversations.List)
				admin.Get("/conversations/{channel}/{phone}", cfg.AdminConversations.Transcript)
				admin.Delete("/conversations/{channel}/{phone}", cfg.AdminConversations.Clear)
			}
			if cfg.AdminLeads != nil {
				admin.Get("/leads", cfg.AdminLeads.List)
				admin.Post("/leads", cfg.AdminLeads.Create)
				admin.Get("/leads/{leadID}", cfg.AdminLeads.Get)
			}
		})
	}

	return r
}
