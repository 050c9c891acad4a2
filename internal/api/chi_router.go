// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/couchrelay/internal/auth"
	"github.com/tomtom215/couchrelay/internal/middleware"
	"github.com/tomtom215/couchrelay/internal/relay"
)

// RejectSessionCreateLimited is the rejection reason for a rate-limited
// POST /api/v1/sessions.
const RejectSessionCreateLimited = "session_create_rate_limited"

// Router wires handlers and middleware into a chi router.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. authMW may be nil, in which case one is built
// from the handler's JWT manager.
func NewRouter(handler *Handler, authMW *auth.Middleware, chiMW *ChiMiddleware) *Router {
	if authMW == nil {
		authMW = auth.NewMiddleware(handler.jwt, authErrorWriter)
	}
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, auth: authMW, chiMiddleware: chiMW}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Applied to ALL routes in order
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed", nil)
	})

	// WebSocket handshakes. The token is checked inside the handler so
	// failures can be counted per reason.
	r.Route("/ws", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit(RejectRateLimited))
		r.Get("/sessions/{code}", router.handler.SessionSocket)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.CORS())

		r.Get("/health/live", router.handler.HealthLive)
		r.Get("/health/ready", router.handler.HealthReady)

		r.Group(func(r chi.Router) {
			r.Use(router.auth.Authenticate)
			r.Get("/relay/stats", router.handler.RelayStats)
		})

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit(RejectSessionCreateLimited))
			r.Use(router.auth.Authenticate)
			r.Use(router.auth.RequireRole(relay.RoleConsole))
			r.Post("/sessions", router.handler.CreateSession)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

