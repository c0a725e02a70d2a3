package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// pollPathPrefix is the route devices long-poll on.
const pollPathPrefix = "/rest/notifications/polling/"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Device-facing fallback transport
	if s.polling != nil {
		r.Get(pollPathPrefix+"{number}", s.handlePoll)
	}

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/devices/{id}/push", s.handlePushDevice)
		r.Post("/configurations/{id}/push", s.handlePushConfiguration)

		if s.audit != nil {
			r.Get("/audit", s.handleListAudit)
		}
	})

	return r
}

func isPollPath(path string) bool {
	return strings.HasPrefix(path, pollPathPrefix)
}
