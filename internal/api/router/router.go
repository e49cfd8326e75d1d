package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/hotel-concierge-ai/internal/channels/email"
	"github.com/wolfman30/hotel-concierge-ai/internal/channels/webchat"
	"github.com/wolfman30/hotel-concierge-ai/internal/channels/whatsapp"
	"github.com/wolfman30/hotel-concierge-ai/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/hotel-concierge-ai/internal/http/middleware"
	"github.com/wolfman30/hotel-concierge-ai/internal/leads"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Health             *handlers.HealthHandler
	WebChat            *webchat.Handler
	WhatsApp           *whatsapp.Handler
	Email              *email.Handler
	Leads              *leads.Handler
	AdminBreakers      *handlers.AdminBreakersHandler
	AdminKnowledge     *handlers.AdminKnowledgeHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// WidgetLimiter and WebhookLimiter throttle the public endpoints per
	// client address. Nil disables throttling.
	WidgetLimiter  *httpmiddleware.RateLimiter
	WebhookLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Timeout(60 * time.Second))

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Chat widget, called from property websites.
	if cfg.WebChat != nil {
		r.Route("/v1/conversations", func(widget chi.Router) {
			widget.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
			widget.Use(middleware.Compress(5))
			if cfg.WidgetLimiter != nil {
				widget.Use(httpmiddleware.RateLimit(cfg.WidgetLimiter, httpmiddleware.ClientIP))
			}
			widget.Post("/", cfg.WebChat.StartConversation)
			widget.Post("/{conversationID}/messages", cfg.WebChat.SendMessage)
		})
	}

	// Provider webhooks. These acknowledge fast and process in the worker.
	r.Route("/webhooks", func(hooks chi.Router) {
		if cfg.WebhookLimiter != nil {
			hooks.Use(httpmiddleware.RateLimit(cfg.WebhookLimiter, httpmiddleware.ClientIP))
		}
		if cfg.WhatsApp != nil {
			hooks.Get("/whatsapp", cfg.WhatsApp.HandleVerification)
			hooks.Post("/whatsapp", cfg.WhatsApp.HandleInbound)
		}
		if cfg.Email != nil {
			hooks.Post("/email", cfg.Email.HandleInbound)
		}
	})

	// Operator routes (HMAC JWT). Property-scoped tokens only reach their
	// own properties.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			global := admin.With(httpmiddleware.RequireAllProperties)
			if cfg.AdminBreakers != nil {
				global.Get("/circuit-breakers", cfg.AdminBreakers.ListBreakers)
				global.Post("/circuit-breakers/{service}/reset", cfg.AdminBreakers.ResetBreaker)
			}
			admin.Route("/properties/{propertyID}", func(prop chi.Router) {
				prop.Use(httpmiddleware.RequirePropertyAccess)
				if cfg.AdminKnowledge != nil {
					prop.Put("/knowledge", cfg.AdminKnowledge.PutKnowledge)
				}
				if cfg.Leads != nil {
					prop.Get("/leads", cfg.Leads.ListLeads)
				}
			})
			if cfg.Leads != nil {
				global.Get("/conversations/{conversationID}/lead", cfg.Leads.GetConversationLead)
			}
		})
	}

	return r
}
