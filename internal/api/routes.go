package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/config"
	"github.com/ignite/campaignsync/internal/pkg/httputil"
)

// APIPrefix is where the editor endpoints live.
const APIPrefix = "/campaignpress/v1"

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	// Mailchimp calls back without credentials; it validates the URL with a GET first.
	if h.webhook != nil {
		hook := strings.TrimSuffix(campaign.WebhookPath, "/")
		r.Method(http.MethodGet, hook+"/{audienceID}", h.webhook)
		r.Method(http.MethodHead, hook+"/{audienceID}", h.webhook)
		r.Method(http.MethodPost, hook+"/{audienceID}", h.webhook)
		r.Method(http.MethodGet, hook+"/{audienceID}/", h.webhook)
		r.Method(http.MethodPost, hook+"/{audienceID}/", h.webhook)
	}

	r.Route(APIPrefix, func(r chi.Router) {
		if cfg.AdminToken != "" {
			r.Use(requireToken(cfg.AdminToken))
		}

		r.Get("/settings", h.GetSettings)
		r.Post("/settings", h.UpdateSettings)
		r.Get("/settings/logs", h.GetLogs)

		r.Get("/audiences", h.ListAudiences)
		r.Post("/audiences/reset", h.ResetAudiences)
		r.Post("/audiences/webhook_registration", h.RegisterWebhooks)
		r.Route("/audiences/{audienceID}", func(r chi.Router) {
			r.Get("/", h.GetAudience)
			r.Post("/", h.SaveAudience)
			r.Get("/sections", h.ListSections)
			r.Put("/sections/{sectionID}/order", h.ReorderSection)
			r.Post("/items", h.UpsertItem)
			r.Delete("/items", h.RemoveItem)
			r.Post("/refresh-links", h.RefreshLinks)
			r.Post("/preview", h.SendPreview)
			r.Post("/template", h.SyncTemplate)
			r.Post("/schedule", h.Schedule)
			r.Post("/unschedule", h.Unschedule)
			r.Get("/next-send", h.NextSend)
		})
		r.Get("/items/{contentID}", h.FindItem)

		r.Get("/content", h.SearchContent)

		r.Post("/campaigns/remove", h.RemoveCampaigns)
		r.Post("/templates/remove", h.RemoveTemplates)
		r.Post("/reset", h.ResetAll)
	})

	return r
}

// requireToken rejects requests without the admin bearer token.
func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
