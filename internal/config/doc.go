// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

/*
Package config provides centralized configuration management for Couchrelay.

Configuration is layered with koanf. Later layers win:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: CONFIG_PATH, or the first of DefaultConfigPaths
 3. Environment variables, mapped explicitly by envTransformFunc

# Configuration Structure

  - ServerConfig: HTTP listener and timeouts
  - RelayConfig: grace windows, idle sweep, replay and queue sizes, heartbeat
    and inbound rate policy
  - SecurityConfig: JWT secret, token lifetime, CORS and handshake rate limit
  - EventsConfig: lifecycle event backend (none, memory, nats) and its breaker
  - NATSConfig: external NATS URL or embedded JetStream server
  - LoggingConfig: zerolog level and format

# Environment Variables

Server:
  - HTTP_HOST, HTTP_PORT (default 0.0.0.0:8765)
  - HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT, HTTP_IDLE_TIMEOUT, SHUTDOWN_TIMEOUT
  - ENVIRONMENT: development or production

Relay:
  - RELAY_GRACE_WINDOW (45s), RELAY_CONSOLE_GRACE (45s), RELAY_IDLE_TIMEOUT (10m)
  - RELAY_SWEEP_INTERVAL (1s)
  - RELAY_REPLAY_BUFFER (256), RELAY_SEND_QUEUE (512)
  - RELAY_MAX_FRAME_BYTES (64KiB)
  - RELAY_PING_INTERVAL (20s), RELAY_HEARTBEAT_TIMEOUT (40s), RELAY_WRITE_WAIT (10s)
  - RELAY_RATE_PER_SECOND (30), RELAY_RATE_BURST (60), RELAY_STRIKE_BUDGET (5)
  - RELAY_SLOW_CONSUMER_LIMIT (64, 0 disables)

Security:
  - JWT_SECRET: required, at least 32 characters
  - TOKEN_TTL (12h), TOKEN_ISSUER (couchrelay)
  - CORS_ORIGINS: comma-separated, "*" is refused in production
  - HANDSHAKE_RATE_LIMIT (30), HANDSHAKE_RATE_WINDOW (1m)

Events and NATS:
  - EVENTS_BACKEND (memory), EVENTS_TOPIC (couchrelay.rooms), EVENTS_QUEUE_SIZE
  - EVENTS_BREAKER_MAX_FAILURES, EVENTS_BREAKER_INTERVAL, EVENTS_BREAKER_TIMEOUT
  - NATS_URL, NATS_EMBEDDED, NATS_STORE_DIR, NATS_PORT
  - NATS_MAX_MEMORY, NATS_MAX_STORE, NATS_STREAM_MAX_AGE

Logging:
  - LOG_LEVEL (info), LOG_FORMAT (json), LOG_CALLER

# Usage

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

Validate runs go-playground/validator tags first, then the cross-field rules:
heartbeat timeout above ping interval, send queue above replay buffer, and a
usable NATS address when the nats backend is selected.
*/
package config
