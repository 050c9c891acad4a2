// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package api

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/couchrelay/internal/auth"
	"github.com/tomtom215/couchrelay/internal/relay"
	ws "github.com/tomtom215/couchrelay/internal/websocket"
)

// EventsStatus reports the lifecycle event publisher's circuit breaker.
// *events.Publisher implements it.
type EventsStatus interface {
	BreakerState() string
}

// HandlerConfig wires a Handler to the rest of the process.
type HandlerConfig struct {
	Registry *relay.Registry
	Hub      *ws.Hub
	JWT      *auth.JWTManager

	// Connection is the per-connection transport policy.
	Connection ws.Config

	// AllowedOrigins gates the websocket Origin header. "*" allows any
	// origin; a request without Origin (native clients) is always allowed.
	AllowedOrigins []string

	// ExposeRoomDetails lets /api/v1/relay/stats?detailed=true list rooms.
	ExposeRoomDetails bool

	// Events is optional.
	Events EventsStatus
}

// Handler serves the relay's HTTP endpoints.
type Handler struct {
	registry      *relay.Registry
	hub           *ws.Hub
	jwt           *auth.JWTManager
	connection    ws.Config
	upgrader      websocket.Upgrader
	exposeDetails bool
	events        EventsStatus
	startTime     time.Time
	draining      atomic.Bool
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		registry:      cfg.Registry,
		hub:           cfg.Hub,
		jwt:           cfg.JWT,
		connection:    cfg.Connection,
		exposeDetails: cfg.ExposeRoomDetails,
		events:        cfg.Events,
		startTime:     time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{auth.Subprotocol},
		CheckOrigin:      originChecker(cfg.AllowedOrigins),
	}
	return h
}

// Drain marks the relay as shutting down. Readiness fails from then on and
// new handshakes are refused with 503.
func (h *Handler) Drain() {
	h.draining.Store(true)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	wildcard := false
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}
