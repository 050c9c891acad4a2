// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"couchrelay.yaml",
	"couchrelay.yml",
	"/etc/couchrelay/config.yaml",
	"/etc/couchrelay/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8765,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Relay: RelayConfig{
			GraceWindow:       45 * time.Second,
			ConsoleGrace:      45 * time.Second,
			IdleTimeout:       10 * time.Minute,
			SweepInterval:     time.Second,
			ReplayBuffer:      256,
			SendQueue:         512,
			MaxFrameBytes:     64 * 1024,
			PingInterval:      20 * time.Second,
			HeartbeatTimeout:  40 * time.Second,
			WriteWait:         10 * time.Second,
			RatePerSecond:     30,
			RateBurst:         60,
			StrikeBudget:      5,
			SlowConsumerLimit: 64,
		},
		Security: SecurityConfig{
			TokenTTL:            12 * time.Hour,
			Issuer:              "couchrelay",
			CORSOrigins:         []string{"*"},
			HandshakeRateLimit:  30,
			HandshakeRateWindow: time.Minute,
		},
		Events: EventsConfig{
			Backend:            "memory",
			Topic:              "couchrelay.rooms",
			QueueSize:          1024,
			BreakerMaxFailures: 5,
			BreakerInterval:    time.Minute,
			BreakerTimeout:     30 * time.Second,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			StoreDir:       "/data/nats/jetstream",
			Port:           4222,
			MaxMemory:      64 * 1024 * 1024,
			MaxStore:       1024 * 1024 * 1024,
			StreamMaxAge:   24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf with layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config File: optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment Variables: override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps flat environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":          "server.host",
	"http_port":          "server.port",
	"http_read_timeout":  "server.read_timeout",
	"http_write_timeout": "server.write_timeout",
	"http_idle_timeout":  "server.idle_timeout",
	"shutdown_timeout":   "server.shutdown_timeout",
	"environment":        "server.environment",

	// Relay
	"relay_grace_window":        "relay.grace_window",
	"relay_console_grace":       "relay.console_grace",
	"relay_idle_timeout":        "relay.idle_timeout",
	"relay_sweep_interval":      "relay.sweep_interval",
	"relay_replay_buffer":       "relay.replay_buffer",
	"relay_send_queue":          "relay.send_queue",
	"relay_max_frame_bytes":     "relay.max_frame_bytes",
	"relay_ping_interval":       "relay.ping_interval",
	"relay_heartbeat_timeout":   "relay.heartbeat_timeout",
	"relay_write_wait":          "relay.write_wait",
	"relay_rate_per_second":     "relay.rate_per_second",
	"relay_rate_burst":          "relay.rate_burst",
	"relay_strike_budget":       "relay.strike_budget",
	"relay_slow_consumer_limit": "relay.slow_consumer_limit",

	// Security
	"jwt_secret":            "security.jwt_secret",
	"token_ttl":             "security.token_ttl",
	"token_issuer":          "security.issuer",
	"cors_origins":          "security.cors_origins",
	"handshake_rate_limit":  "security.handshake_rate_limit",
	"handshake_rate_window": "security.handshake_rate_window",

	// Events
	"events_backend":              "events.backend",
	"events_topic":                "events.topic",
	"events_queue_size":           "events.queue_size",
	"events_breaker_max_failures": "events.breaker_max_failures",
	"events_breaker_interval":     "events.breaker_interval",
	"events_breaker_timeout":      "events.breaker_timeout",

	// NATS
	"nats_url":            "nats.url",
	"nats_embedded":       "nats.embedded_server",
	"nats_store_dir":      "nats.store_dir",
	"nats_port":           "nats.port",
	"nats_max_memory":     "nats.max_memory",
	"nats_max_store":      "nats.max_store",
	"nats_stream_max_age": "nats.stream_max_age",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - RELAY_GRACE_WINDOW -> relay.grace_window
//   - NATS_EMBEDDED -> nats.embedded_server
//
// Unmapped variables return "" and are skipped, so unrelated environment
// does not leak into the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
