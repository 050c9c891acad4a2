// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package main

import (
	"net/http"
	"time"

	"github.com/tomtom215/couchrelay/internal/api"
	"github.com/tomtom215/couchrelay/internal/config"
	"github.com/tomtom215/couchrelay/internal/events"
	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/relay"
	"github.com/tomtom215/couchrelay/internal/supervisor"
	ws "github.com/tomtom215/couchrelay/internal/websocket"
)

// loggingConfig maps the logging section onto logging.Config.
func loggingConfig(cfg *config.Config) logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Logging.Level
	lc.Format = cfg.Logging.Format
	lc.Caller = cfg.Logging.Caller
	return lc
}

// relayOptions maps the relay section onto room and registry policy.
func relayOptions(cfg *config.Config) relay.Options {
	return relay.Options{
		GraceWindow:       cfg.Relay.GraceWindow,
		ConsoleGrace:      cfg.Relay.ConsoleGrace,
		IdleTimeout:       cfg.Relay.IdleTimeout,
		SweepInterval:     cfg.Relay.SweepInterval,
		ReplayBuffer:      cfg.Relay.ReplayBuffer,
		SlowConsumerLimit: cfg.Relay.SlowConsumerLimit,
	}
}

// connectionConfig maps the relay section onto the per-connection policy.
func connectionConfig(cfg *config.Config) ws.Config {
	return ws.Config{
		SendQueue:        cfg.Relay.SendQueue,
		MaxFrameBytes:    cfg.Relay.MaxFrameBytes,
		PingInterval:     cfg.Relay.PingInterval,
		HeartbeatTimeout: cfg.Relay.HeartbeatTimeout,
		WriteWait:        cfg.Relay.WriteWait,
		RatePerSecond:    cfg.Relay.RatePerSecond,
		RateBurst:        cfg.Relay.RateBurst,
		StrikeBudget:     cfg.Relay.StrikeBudget,
	}
}

// publisherConfig maps the events and nats sections onto the publisher.
func publisherConfig(cfg *config.Config) events.PublisherConfig {
	pc := events.DefaultPublisherConfig(cfg.NATSURL(), cfg.Events.Topic)
	pc.Backend = cfg.Events.Backend
	pc.Stream.MaxAge = cfg.NATS.StreamMaxAge
	pc.Breaker.FailureThreshold = cfg.Events.BreakerMaxFailures
	pc.Breaker.Interval = cfg.Events.BreakerInterval
	pc.Breaker.Timeout = cfg.Events.BreakerTimeout
	return pc
}

// embeddedServerConfig returns the in-process NATS server settings, and
// false when no embedded server should run.
func embeddedServerConfig(cfg *config.Config) (events.ServerConfig, bool) {
	if cfg.Events.Backend != events.BackendNATS || !cfg.NATS.EmbeddedServer {
		return events.ServerConfig{}, false
	}
	sc := events.DefaultServerConfig()
	sc.Port = cfg.NATS.Port
	sc.StoreDir = cfg.NATS.StoreDir
	sc.JetStreamMaxMem = cfg.NATS.MaxMemory
	sc.JetStreamMaxStore = cfg.NATS.MaxStore
	return sc, true
}

// middlewareConfig maps the security section onto CORS and rate limits.
func middlewareConfig(cfg *config.Config) *api.ChiMiddlewareConfig {
	mc := api.DefaultChiMiddlewareConfig()
	mc.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mc.RateLimitRequests = cfg.Security.HandshakeRateLimit
	mc.RateLimitWindow = cfg.Security.HandshakeRateWindow
	return mc
}

// treeConfig derives supervisor timeouts from the server section.
func treeConfig(cfg *config.Config) supervisor.TreeConfig {
	tc := supervisor.DefaultTreeConfig()
	// The HTTP service needs its own shutdown budget plus room to return.
	tc.ShutdownTimeout = cfg.Server.ShutdownTimeout + 5*time.Second
	return tc
}

// newHTTPServer builds the listener-less http.Server for the API layer.
func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
