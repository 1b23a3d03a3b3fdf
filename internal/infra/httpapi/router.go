// Package httpapi exposes the billing services over HTTP for the staff UI.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new Chi router and registers the billing routes.
// Everything except /health and /metrics requires the API key when one is configured.
func NewRouter(h *Handler, apiKey string, gatherer prometheus.Gatherer, logger *logrus.Entry) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(APIKeyMiddleware(apiKey))

		r.Post("/payments", h.wrap(h.handleRecordPayment))
		r.Delete("/payments/{id}", h.wrap(h.handleDeletePayment))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", h.wrap(h.handleListSubscriptions))
			r.Post("/", h.wrap(h.handleCreateSubscription))
			r.Post("/reconcile", h.wrap(h.handleReconcile))
			r.Get("/{id}", h.wrap(h.handleGetSubscription))
			r.Post("/{id}/stop", h.wrap(h.handleStopSubscription))
			r.Post("/{id}/resume", h.wrap(h.handleResumeSubscription))
			r.Get("/{id}/payments", h.wrap(h.handleListPayments))
		})

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.wrap(h.handleListClients))
			r.Post("/", h.wrap(h.handleCreateClient))
			r.Get("/{id}", h.wrap(h.handleGetClient))
			r.Put("/{id}", h.wrap(h.handleUpdateClient))
			r.Delete("/{id}", h.wrap(h.handleDeleteClient))
			r.Get("/{id}/reminders", h.wrap(h.handleListReminders))
		})

		r.Post("/reminders", h.wrap(h.handleCreateReminder))
	})

	return r
}
