package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": "0.1.0"})
		})

		// Sessions
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/{id}", h.GetSession)
		r.Patch("/sessions/{id}", h.PatchSession)
		r.Get("/sessions/{id}/commands", h.ListSessionCommands)

		// Commands
		r.Post("/commands", h.EnqueueCommand)
		r.Get("/commands/{id}", h.GetCommand)
		r.Get("/commands/{id}/envelope", h.GetEnvelope)
		r.Post("/commands/{id}/status", h.UpdateCommandStatus)
		r.Post("/commands/{id}/hitl", h.ResolveHITL)

		// Jobs
		r.Get("/jobs/pending", h.ListPendingJobs)

		// Connectors
		r.Post("/connectors", h.RegisterConnector)
		r.Get("/connectors", h.ListConnectors)
		r.Get("/connectors/{name}", h.GetConnector)

		// Event stream
		r.Get("/ws", h.HandleWS)
	})
}
