package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(g.countRequests)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))
	}

	// Ingestion: own HMAC auth per source.
	r.Post("/ingest/{source}", g.dispatcher.ServeHTTP)

	// Operator API: auth required. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Get("/events", g.handleEvents())
				r.Get("/stats", g.handleStats())
				r.Get("/recent", g.handleLatest())
				r.Get("/query", g.handleQuery())
				r.Get("/hash/{hash}", g.handleHash())
				r.Get("/topics", g.handleTopics())
				r.Get("/topics/{topic}", g.handleTopic())

				r.Get("/sessions", g.handleSessions())
				r.Route("/sessions/{id}", func(r chi.Router) {
					r.Get("/", g.handleSession())
					r.Delete("/", g.handleArchive())
					r.Get("/recent", g.handleRecent())
					r.Get("/context", g.handleContext())
					r.Post("/questions", g.handleAsk())
					r.Post("/entries/{seq}/answer", g.handleAnswer())
					r.Put("/entries/{seq}/significance", g.handleSignificance())
					r.Put("/entries/{seq}/tags", g.handleTags())
				})
				r.Post("/exchanges", g.handleExchange())

				r.Post("/extract", g.handleExtract())
				r.Post("/reindex", g.handleReindex())
				r.Get("/jobs", g.handleJobs())
				r.Post("/jobs/{name}/run", g.handleRunJob())
				r.Get("/modules", g.handleModules())
				r.Get("/config", g.handleGetConfig())
			})
		})
	}

	return r
}
