package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/leadflow/internal/conversation"
	httpmiddleware "github.com/wolfman30/leadflow/internal/http/middleware"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/settings"
	"github.com/wolfman30/leadflow/internal/webhooks"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	LeadsHandler        *leads.Handler
	ConversationHandler *conversation.Handler
	SettingsHandler     *settings.Handler
	WebhookHandler      *webhooks.Handler
	MetricsHandler      http.Handler
	RateLimiter         *httpmiddleware.RateLimiter
	AdminAuthSecret     string
	CORSAllowedOrigins  []string
	HealthChecks        map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	api := routes(cfg)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if policy := corsPolicy(cfg.CORSAllowedOrigins, api); policy.Enabled() {
		r.Use(httpmiddleware.CORS(policy))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Mount("/", api)
	return r
}

func routes(cfg *Config) chi.Router {
	r := chi.NewRouter()
	r.Group(func(public chi.Router) {
		public.Get("/health", health(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Get("/metrics", cfg.MetricsHandler.ServeHTTP)
		}
		if cfg.WebhookHandler != nil {
			public.Post("/webhooks/{provider}/{tenantID}", cfg.WebhookHandler.Handle)
		}
	})

	r.Route("/tenants/{tenantID}", func(tenant chi.Router) {
		tenant.Use(requireTenant)
		if cfg.RateLimiter != nil {
			tenant.Use(httpmiddleware.RateLimit(cfg.RateLimiter, httpmiddleware.KeyByTenant))
		}
		tenant.Route("/leads/{leadID}", func(lead chi.Router) {
			if cfg.LeadsHandler != nil {
				lead.Get("/", cfg.LeadsHandler.GetLead)
			}
			if cfg.ConversationHandler != nil {
				lead.Get("/messages", cfg.ConversationHandler.ListMessages)
				lead.Post("/messages", cfg.ConversationHandler.SendMessage)
				lead.Post("/fake-incoming", cfg.ConversationHandler.FakeIncoming)
				lead.Post("/handoff/take-over", cfg.ConversationHandler.TakeOver)
				lead.Post("/handoff/release", cfg.ConversationHandler.Release)
			}
		})
	})

	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, httpmiddleware.RoleAdmin, httpmiddleware.RoleOperator))
			if cfg.ConversationHandler != nil {
				admin.Get("/tenants/{tenantID}/leads/{leadID}/decisions", cfg.ConversationHandler.ListDecisions)
			}
			admin.Group(func(owner chi.Router) {
				owner.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, httpmiddleware.RoleAdmin))
				if cfg.ConversationHandler != nil {
					owner.Get("/automation", cfg.ConversationHandler.GetAutomation)
					owner.Put("/automation", cfg.ConversationHandler.PutAutomation)
				}
				if cfg.SettingsHandler != nil {
					owner.Get("/tenants/{tenantID}/settings", cfg.SettingsHandler.Get)
					owner.Put("/tenants/{tenantID}/settings", cfg.SettingsHandler.Put)
				}
			})
		})
	}

	return r
}

// corsPolicy lets the console call exactly the methods the routes answer to.
func corsPolicy(origins []string, mux chi.Routes) httpmiddleware.CORSPolicy {
	seen := map[string]struct{}{}
	var methods []string
	_ = chi.Walk(mux, func(method, _ string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if _, ok := seen[method]; !ok {
			seen[method] = struct{}{}
			methods = append(methods, method)
		}
		return nil
	})
	return httpmiddleware.CORSPolicy{
		Origins: origins,
		Methods: methods,
		Headers: []string{"Authorization", "Content-Type", tenantHeader, "X-Request-ID"},
	}
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				resp[name] = err.Error()
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
