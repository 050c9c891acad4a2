// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

// Package metrics holds the Prometheus instruments for the relay.
//
// All collectors register on the default registry through promauto and are
// scraped from GET /metrics. The gauges double as the "active rooms /
// connections" figures surfaced by the stats endpoint.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Room and participant gauges
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_rooms_active",
			Help: "Current number of session rooms held by the registry",
		},
	)

	ParticipantsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_participants_active",
			Help: "Current number of participants across all rooms, including those in their grace window",
		},
	)

	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Current number of live WebSocket connections",
		},
	)

	RoomLifetime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_room_lifetime_seconds",
			Help:    "Time between room creation and close",
			Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200, 14400},
		},
	)

	// Admission and message flow
	Admissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_admissions_total",
			Help: "Admission attempts by role and result",
		},
		[]string{"role", "result"}, // result: joined, resumed, superseded, or an error code
	)

	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_routed_total",
			Help: "Client messages accepted by the router, by message type",
		},
		[]string{"type"},
	)

	MessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_delivered_total",
			Help: "Envelopes placed on a recipient's outbound queue",
		},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_dropped_total",
			Help: "Envelopes dropped for a single recipient",
		},
		[]string{"reason"}, // "backpressure", "closed"
	)

	ReplayedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_replayed_messages_total",
			Help: "Buffered envelopes replayed to reconnecting participants",
		},
	)

	FrameErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frame_errors_total",
			Help: "Inbound frames rejected, by error code",
		},
		[]string{"error_type"},
	)

	Disconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_disconnects_total",
			Help: "Connection terminations by reason",
		},
		[]string{"reason"},
	)

	// Lifecycle event publishing
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_published_total",
			Help: "Room lifecycle events handed to the event bus, by result",
		},
		[]string{"result"}, // "published", "failed", "dropped", "circuit_open"
	)

	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_event_queue_depth",
			Help: "Lifecycle events waiting to be published",
		},
	)

	// HTTP surface
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	HandshakeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_handshake_rejections_total",
			Help: "WebSocket handshakes rejected before upgrade",
		},
		[]string{"reason"},
	)
)

// RecordAdmission records the outcome of a Room.Admit call.
func RecordAdmission(role, result string) {
	Admissions.WithLabelValues(role, result).Inc()
}

// RecordRouted records a client message accepted by the router.
func RecordRouted(msgType string) {
	MessagesRouted.WithLabelValues(msgType).Inc()
}

// RecordDelivered records one envelope placed on an outbound queue.
func RecordDelivered() {
	MessagesDelivered.Inc()
}

// RecordDropped records an envelope that could not be queued for one recipient.
func RecordDropped(reason string) {
	MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordReplayed records n replayed envelopes.
func RecordReplayed(n int) {
	if n > 0 {
		ReplayedMessages.Add(float64(n))
	}
}

// RecordFrameError records a rejected inbound frame.
func RecordFrameError(code string) {
	FrameErrors.WithLabelValues(code).Inc()
}

// RecordDisconnect records a connection termination.
func RecordDisconnect(reason string) {
	Disconnects.WithLabelValues(reason).Inc()
}

// RecordRoomClosed observes the lifetime of a closed room.
func RecordRoomClosed(lifetime time.Duration) {
	RoomLifetime.Observe(lifetime.Seconds())
}

// RecordEventPublish records the result of publishing a lifecycle event.
func RecordEventPublish(result string) {
	EventsPublished.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight HTTP requests.
func TrackActiveRequest(inc bool) {
	if inc {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// RecordHandshakeRejection records a handshake refused before upgrade.
func RecordHandshakeRejection(reason string) {
	HandshakeRejections.WithLabelValues(reason).Inc()
}
