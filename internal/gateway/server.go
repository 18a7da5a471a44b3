package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(g.cfg.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Everything else sits behind the bearer token when one is set.
	r.Group(func(r chi.Router) {
		if g.cfg.AuthToken != "" {
			r.Use(authMiddleware(g.cfg.AuthToken))
		}

		r.Get("/status", g.handleStatus())
		r.Get("/ws/turns", g.handleTurns())

		r.Route("/v1", func(r chi.Router) {
			r.Post("/capture", g.handleCapture())
			r.Post("/recall", g.handleRecall())

			r.Route("/records", func(r chi.Router) {
				r.Get("/", g.handleListRecords())
				r.Get("/{id}", g.handleGetRecord())
				r.Patch("/{id}", g.handleUpdateRecord())
				r.Delete("/{id}", g.handleDeleteRecord())
			})

			r.Get("/users/{id}/profile", g.handleProfile())
		})
	})

	return r
}
