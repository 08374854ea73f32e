/**
 * @description
 * This file sets up the HTTP router for the escrow service. It defines the
 * trigger endpoints, associates them with their handlers, and applies the
 * shared-secret authentication middleware.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and returns the router for the escrow service.
func NewRouter(h *CronHandlers, triggerSecret string) http.Handler {
	r := chi.NewRouter()

	// Standard middleware for logging, panic recovery, and timeouts. Batch
	// runs are capped by record count, so a generous timeout is enough.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Trigger endpoints require the shared scheduler credential.
	r.Group(func(r chi.Router) {
		r.Use(CronAuthMiddleware(triggerSecret))

		r.Post("/cron/release-escrow", h.ReleaseEscrowHandler)
		r.Post("/cron/process-transfers", h.ProcessTransfersHandler)
	})

	return r
}
