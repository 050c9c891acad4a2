// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

/*
Package middleware provides the HTTP middleware shared by every Couchrelay
route.

Key Components:

  - RequestID: UUID request IDs, echoed in X-Request-ID and attached to the
    request logger
  - PrometheusMetrics: http_requests_total and http_request_duration_seconds,
    labelled with the chi route pattern

Both are plain func(http.Handler) http.Handler values and are mounted with
chi's Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

The metrics wrapper implements http.Hijacker so websocket upgrades pass
through it.
*/
package middleware
