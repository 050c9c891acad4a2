// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

// Package main is the entry point for the Couchrelay server.
//
// Couchrelay pairs one console (the TV or shared screen) with phone
// controllers and spectators in short-lived rooms named by a six-character
// session code, and relays their messages over websockets.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional YAML file, environment (koanf v2)
//  2. Logging: zerolog, with a slog bridge for suture and Watermill
//  3. Authentication: HS256 session tokens (JWT_SECRET)
//  4. Events (optional): lifecycle events to an in-memory channel or NATS
//     JetStream, with an optional embedded NATS server
//  5. Relay: room registry, sweeper and connection hub
//  6. HTTP Server: websocket handshake, session creation, health, metrics
//
// Everything long-running is a suture service in one of three layers
// (relay, messaging, api).
//
// # Signal Handling
//
// On SIGINT or SIGTERM readiness starts failing and new handshakes get 503.
// The supervisor tree is then canceled: every room sends its participants a
// final room_closing error, leftover connections close with 1001, and the
// HTTP server drains for SHUTDOWN_TIMEOUT.
//
// # Example Usage
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export CORS_ORIGINS=https://couch.example
//	./couchrelay
//
// With an embedded JetStream broker for lifecycle events:
//
//	export EVENTS_BACKEND=nats
//	export NATS_EMBEDDED=true
//	export NATS_STORE_DIR=/var/lib/couchrelay/nats
//	./couchrelay
//
// # Port 8765
//
// The default port is 8765 (HTTP_PORT).
package main
