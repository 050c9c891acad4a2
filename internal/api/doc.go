// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

/*
Package api is the HTTP surface of Couchrelay, routed with chi.

Routes:

	GET  /ws/sessions/{code}       websocket handshake (token required)
	POST /api/v1/sessions          open a room (console token required)
	GET  /api/v1/health/live       liveness
	GET  /api/v1/health/ready      readiness, 503 while draining
	GET  /api/v1/relay/stats       registry counts (token required)
	GET  /metrics                  Prometheus

The handshake token is read from "Authorization: Bearer", the token query
parameter, or the Sec-WebSocket-Protocol entry following "couchrelay.v1".
Only "couchrelay.v1" is echoed back as the negotiated subprotocol.

Handshake failures that can be decided before the upgrade return JSON:

	401 UNAUTHORIZED    missing, invalid or expired token
	404 ROOM_NOT_FOUND  malformed code, or no room for a non-console
	409 ROLE_CONFLICT   another console is connected
	410 ROOM_CLOSING    the room is shutting down
	429 RATE_LIMITED    too many handshakes from one IP

Every error body has the shape

	{"success": false, "error": {"code": "...", "message": "..."}}
*/
package api
