// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/metrics"
	"github.com/tomtom215/couchrelay/internal/relay"
)

// ShutdownReason identifies why the hub is shutting down.
// This enables clear observability in logs and metrics.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	// This may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub tracks every live connection in the process. Rooms own routing; the
// hub only counts connections and closes them all on shutdown.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	stopped bool
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Register adds c. A client registered after shutdown is closed at once.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		c.Close(relay.CloseGoingAway, "server shutting down")
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	logging.Debug().Str("conn_id", c.ID()).Int("total_clients", count).Msg("websocket client connected")
}

// Unregister removes c.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectionsActive.Dec()
	logging.Debug().Str("conn_id", c.ID()).Int("total_clients", count).Msg("websocket client disconnected")
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunWithContext blocks until ctx is canceled, then closes every connection
// with 1001 and returns ctx.Err(). It is designed for use with suture
// supervision; a restarted hub accepts connections again.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = false
	h.mu.Unlock()

	<-ctx.Done()
	h.logGracefulShutdown(ctx)
	return ctx.Err()
}

// logGracefulShutdown closes all clients and logs the shutdown.
//
// Note: ctx.Err() is NOT logged as an error because context cancellation
// is expected behavior during graceful shutdown.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.closeAllClients()
	reason := getShutdownReason(ctx)

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients asks every connection to close, in connection ID order.
// Clients unregister themselves once their write pump exits.
func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	h.stopped = true
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		client.Close(relay.CloseGoingAway, "server shutting down")
	}
	return len(clients)
}
