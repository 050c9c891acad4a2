// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

/*
Package supervisor provides process supervision for Couchrelay using suture v4.

# Overview

	RootSupervisor ("couchrelay")
	├── RelaySupervisor ("relay-layer")
	│   └── RelayService (registry sweep + connection hub)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── events.ServerService (if NATS_EMBEDDED)
	│   └── events.Forwarder (unless EVENTS_BACKEND=none)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Crashed services are restarted with suture's backoff. Each layer counts
failures on its own, so a flapping broker never restarts the relay.

Supervisor events (start, failure, backoff) go through sutureslog to a
slog.Logger, which logging.NewSlogLogger bridges onto zerolog.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddRelayService(services.NewRelayService(registry, hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Addr(), cfg.Server.ShutdownTimeout))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped")
	}

After Serve returns, UnstoppedServiceReport lists anything that ignored
the shutdown timeout.
*/
package supervisor
