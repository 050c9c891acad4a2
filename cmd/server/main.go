// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/couchrelay/internal/api"
	"github.com/tomtom215/couchrelay/internal/auth"
	"github.com/tomtom215/couchrelay/internal/config"
	"github.com/tomtom215/couchrelay/internal/events"
	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/relay"
	"github.com/tomtom215/couchrelay/internal/supervisor"
	"github.com/tomtom215/couchrelay/internal/supervisor/services"
	ws "github.com/tomtom215/couchrelay/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(loggingConfig(cfg))
	logging.Info().
		Str("addr", cfg.Addr()).
		Str("environment", cfg.Server.Environment).
		Str("events_backend", cfg.Events.Backend).
		Msg("Starting Couchrelay")

	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS_ORIGINS allows any origin; restrict it before exposing the relay")
	}

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeConfig(cfg))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// === MESSAGING LAYER ===

	var notifier relay.LifecycleNotifier = relay.NopNotifier{}
	var eventsStatus api.EventsStatus

	if sc, ok := embeddedServerConfig(cfg); ok {
		tree.AddMessagingService(events.NewServerService(sc))
		logging.Info().Int("port", sc.Port).Str("store_dir", sc.StoreDir).Msg("Embedded NATS server added to supervisor tree")
	}

	publisher, err := events.NewPublisher(publisherConfig(cfg), watermill.NewSlogLogger(logging.NewSlogLogger()))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize lifecycle event publisher")
	}
	if publisher != nil {
		defer func() {
			if err := publisher.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing event publisher")
			}
		}()

		queue := events.NewNotifier(cfg.Events.QueueSize)
		notifier = queue
		eventsStatus = publisher
		tree.AddMessagingService(events.NewForwarder(queue, publisher))
		logging.Info().Str("topic", publisher.Topic()).Msg("Lifecycle event forwarder added to supervisor tree")
	}

	// === RELAY LAYER ===

	registry := relay.NewRegistry(relayOptions(cfg), relay.WithNotifier(notifier))
	hub := ws.NewHub()
	tree.AddRelayService(services.NewRelayService(registry, hub))

	// === API LAYER ===

	handler := api.NewHandler(api.HandlerConfig{
		Registry:          registry,
		Hub:               hub,
		JWT:               jwtManager,
		Connection:        connectionConfig(cfg),
		AllowedOrigins:    cfg.Security.CORSOrigins,
		ExposeRoomDetails: !cfg.IsProduction(),
		Events:            eventsStatus,
	})
	router := api.NewRouter(handler, nil, api.NewChiMiddleware(middlewareConfig(cfg)))
	server := newHTTPServer(cfg, router.SetupChi())
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.Server.ShutdownTimeout))

	// === START SUPERVISOR TREE ===

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		handler.Drain()
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		err = <-errCh
	case err = <-errCh:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Couchrelay stopped")
}
