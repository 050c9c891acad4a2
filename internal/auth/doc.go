// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

/*
Package auth verifies the session tokens that identify relay participants.

A token is an HS256 JWT issued by whatever service runs the game lobby. It
carries:

  - sub: the stable subject (player or device ID). Reconnecting with the same
    subject resumes the same seat.
  - role: console, controller or spectator
  - nickname: optional display name, 2 to 20 characters
  - token_type: must be "access"

Key Components:

  - JWTManager: token issuance (for cmd/token and tests) and validation
  - Middleware: Authenticate and RequireRole for the REST endpoints
  - ExtractToken: finds the token on a websocket handshake or REST request

Token Sources:

Browsers cannot set headers on a websocket upgrade, so ExtractToken accepts,
in order:

 1. Authorization: Bearer <token>
 2. ?token=<token>
 3. Sec-WebSocket-Protocol: couchrelay.v1, <token>

Every verification failure wraps relay.ErrUnauthorized, which the API maps to
a 401 before the upgrade.
*/
package auth
