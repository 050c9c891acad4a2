// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package config

import (
	"time"
)

// Config holds all application configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. See LoadWithKoanf.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Relay    RelayConfig    `koanf:"relay"`
	Security SecurityConfig `koanf:"security"`
	Events   EventsConfig   `koanf:"events"`
	NATS     NATSConfig     `koanf:"nats"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// Environment is "development" or "production". Production refuses a
	// wildcard CORS origin.
	Environment string `koanf:"environment" validate:"oneof=development dev production prod"`
}

// RelayConfig holds session and per-connection policy.
type RelayConfig struct {
	// GraceWindow is how long a disconnected controller keeps its seat.
	GraceWindow time.Duration `koanf:"grace_window" validate:"gt=0"`

	// ConsoleGrace is how long a room survives without its console. Zero
	// means GraceWindow.
	ConsoleGrace time.Duration `koanf:"console_grace" validate:"gte=0"`

	// IdleTimeout closes a room that has seen no frames for this long.
	IdleTimeout   time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`

	// ReplayBuffer is how many recent envelopes each participant keeps for
	// resume. SendQueue must be larger so a full replay fits.
	ReplayBuffer int `koanf:"replay_buffer" validate:"min=1,max=65536"`
	SendQueue    int `koanf:"send_queue" validate:"min=1"`

	MaxFrameBytes    int64         `koanf:"max_frame_bytes" validate:"min=256"`
	PingInterval     time.Duration `koanf:"ping_interval" validate:"gt=0"`
	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout" validate:"gt=0"`
	WriteWait        time.Duration `koanf:"write_wait" validate:"gt=0"`

	RatePerSecond float64 `koanf:"rate_per_second" validate:"gt=0"`
	RateBurst     int     `koanf:"rate_burst" validate:"min=1"`
	StrikeBudget  int     `koanf:"strike_budget" validate:"min=0"`

	// SlowConsumerLimit closes a connection after this many consecutive
	// dropped envelopes. Zero disables it.
	SlowConsumerLimit int `koanf:"slow_consumer_limit" validate:"min=0"`
}

// SecurityConfig holds token and handshake settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies session tokens (HS256, at least 32 bytes).
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl" validate:"gt=0"`
	Issuer    string        `koanf:"issuer" validate:"required"`

	// CORSOrigins also gates the websocket Origin header.
	CORSOrigins []string `koanf:"cors_origins"`

	// HandshakeRateLimit is the number of handshakes one IP may attempt per
	// HandshakeRateWindow. Zero disables the limiter.
	HandshakeRateLimit  int           `koanf:"handshake_rate_limit" validate:"min=0"`
	HandshakeRateWindow time.Duration `koanf:"handshake_rate_window" validate:"gt=0"`
}

// EventsConfig controls publication of room lifecycle events.
type EventsConfig struct {
	// Backend is "none", "memory" (in-process Watermill channel) or "nats".
	Backend   string `koanf:"backend" validate:"oneof=none memory nats"`
	Topic     string `koanf:"topic" validate:"required"`
	QueueSize int    `koanf:"queue_size" validate:"min=1"`

	BreakerMaxFailures uint32        `koanf:"breaker_max_failures" validate:"min=1"`
	BreakerInterval    time.Duration `koanf:"breaker_interval" validate:"gte=0"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// NATSConfig holds the NATS connection used by the "nats" events backend.
type NATSConfig struct {
	URL string `koanf:"url"`

	// EmbeddedServer starts an in-process JetStream server and publishes to it.
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	Port           int    `koanf:"port" validate:"min=0,max=65535"`
	MaxMemory      int64  `koanf:"max_memory" validate:"min=0"`
	MaxStore       int64  `koanf:"max_store" validate:"min=0"`

	// StreamMaxAge bounds how long lifecycle events are retained.
	StreamMaxAge time.Duration `koanf:"stream_max_age" validate:"gte=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
