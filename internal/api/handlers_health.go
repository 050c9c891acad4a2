// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package api

import (
	"net/http"
	"strconv"
	"time"
)

// HealthLive handles liveness probe requests. It only proves the process
// answers HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests.
//
// The relay is ready until Drain is called. The events breaker is reported
// but never fails readiness, since lifecycle events are fire-and-forget.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ready := !h.draining.Load()
	stats := h.registry.Stats(false)

	data := map[string]interface{}{
		"ready_to_serve": ready,
		"rooms":          stats.Rooms,
		"connections":    h.hub.GetClientCount(),
		"uptime":         time.Since(h.startTime).Seconds(),
	}
	if h.events != nil {
		data["events_breaker"] = h.events.BreakerState()
	}

	if !ready {
		respondJSON(w, http.StatusServiceUnavailable, &APIResponse{
			Data:  data,
			Error: &APIError{Code: CodeNotReady, Message: "Server is shutting down"},
		})
		return
	}
	respondData(w, http.StatusOK, data)
}

// RelayStats returns registry-wide counts. With ?detailed=true, and when
// enabled, it also lists every room.
func (h *Handler) RelayStats(w http.ResponseWriter, r *http.Request) {
	detailed, _ := strconv.ParseBool(r.URL.Query().Get("detailed"))
	if detailed && !h.exposeDetails {
		respondError(w, http.StatusForbidden, CodeForbidden, "Room details are disabled", nil)
		return
	}

	stats := h.registry.Stats(detailed)
	respondData(w, http.StatusOK, map[string]interface{}{
		"rooms":        stats.Rooms,
		"participants": stats.Participants,
		"connected":    stats.Connected,
		"by_state":     stats.ByState,
		"connections":  h.hub.GetClientCount(),
		"room_details": stats.RoomDetails,
	})
}
