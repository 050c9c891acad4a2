// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/couchrelay/internal/validation"
)

// minJWTSecretLength is the shortest HS256 secret accepted.
const minJWTSecretLength = 32

// Validate checks struct tags first, then the rules that span fields.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("invalid configuration: %w", verr)
	}

	if err := c.validateRelay(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return c.validateEvents()
}

// validateRelay checks the timing and queue relationships between relay settings.
func (c *Config) validateRelay() error {
	r := c.Relay
	if r.HeartbeatTimeout <= r.PingInterval {
		return fmt.Errorf("RELAY_HEARTBEAT_TIMEOUT (%v) must be greater than RELAY_PING_INTERVAL (%v)",
			r.HeartbeatTimeout, r.PingInterval)
	}
	if r.SendQueue <= r.ReplayBuffer {
		return fmt.Errorf("RELAY_SEND_QUEUE (%d) must be greater than RELAY_REPLAY_BUFFER (%d) so a full replay fits",
			r.SendQueue, r.ReplayBuffer)
	}
	if r.SweepInterval > r.GraceWindow {
		return fmt.Errorf("RELAY_SWEEP_INTERVAL (%v) must not exceed RELAY_GRACE_WINDOW (%v)",
			r.SweepInterval, r.GraceWindow)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	return c.validateCORS()
}

// validateCORS rejects a wildcard origin in production. The same list gates
// websocket Origin checks, so "*" would let any page open a session.
func (c *Config) validateCORS() error {
	if c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production. " +
			"Either set specific origins: CORS_ORIGINS=https://yourdomain.com,https://app.yourdomain.com " +
			"or use ENVIRONMENT=development for testing purposes")
	}
	return nil
}

// hasWildcardCORS checks if CORS is configured with wildcard origins
func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// ShouldWarnAboutCORS returns true if CORS configuration has security concerns
// that should be logged at startup
func (c *Config) ShouldWarnAboutCORS() bool {
	return c.hasWildcardCORS()
}

// validateEvents checks the NATS settings when the nats backend is selected.
func (c *Config) validateEvents() error {
	if c.Events.Backend != "nats" {
		return nil
	}
	if c.NATS.EmbeddedServer {
		if c.NATS.StoreDir == "" {
			return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
		}
		if c.NATS.Port == 0 {
			return fmt.Errorf("NATS_PORT is required when NATS_EMBEDDED=true")
		}
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when EVENTS_BACKEND=nats")
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	return nil
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// NATSURL returns the URL the publisher connects to: the embedded server's
// loopback listener when one is configured, otherwise nats.url.
func (c *Config) NATSURL() string {
	if c.NATS.EmbeddedServer {
		return fmt.Sprintf("nats://127.0.0.1:%d", c.NATS.Port)
	}
	return c.NATS.URL
}
