package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins is used when the config lists none.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health.HandleHealth)
	r.Get("/health/live", h.health.HandleLiveness)
	r.Get("/health/ready", h.health.HandleReadiness)

	r.Route("/api", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", h.CreateConversation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetConversation)
				r.Post("/messages", h.PostCustomerMessage)
				r.Post("/triage", h.TriggerTriage)
				r.Post("/admin-messages", h.PostAdminMessage)
				r.Post("/escalate", h.EscalateConversation)
				r.Post("/resolve", h.ResolveConversation)
				r.Post("/reopen", h.ReopenConversation)
				r.Post("/close", h.CloseConversation)
				r.Post("/spam", h.MarkSpam)
				r.Post("/archive", h.ArchiveConversation)
				r.Post("/rate", h.RateConversation)
				r.Post("/assign", h.AssignConversation)
			})
		})

		r.Route("/patterns", func(r chi.Router) {
			r.Get("/effectiveness", h.PatternEffectiveness)
			r.Get("/suggestions/{id}", h.GetPatternSuggestion)
			r.Post("/suggestions/{id}", h.SavePatternSuggestion)
		})

		r.Get("/settings", h.GetSettings)
		r.Put("/settings/{key}", h.PutSetting)

		r.Get("/notify/stats", h.NotifyStats)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logRequest(r, ww.Status(), time.Since(start))
	})
}
