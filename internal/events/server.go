// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/couchrelay/internal/logging"
)

// readyTimeout bounds how long NewEmbeddedServer waits for the listener.
const readyTimeout = 30 * time.Second

// EmbeddedServer wraps the NATS server with lifecycle management.
// It provides a self-contained JetStream instance for single-node
// deployments that publish lifecycle events without an external broker.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedServer creates and starts an embedded NATS server.
// Returns an error if the server fails to start within 30 seconds.
func NewEmbeddedServer(cfg ServerConfig) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName:         "couchrelay-events",
		Host:               cfg.Host,
		Port:               cfg.Port,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.JetStreamMaxMem,
		JetStreamMaxStore:  cfg.JetStreamMaxStore,
		NoSigs:             true, // Signals belong to the supervisor
		NoLog:              true,
		MaxPayload:         1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}

	return &EmbeddedServer{
		server:    ns,
		clientURL: ns.ClientURL(),
	}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}

// IsRunning returns server health status.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}

// JetStreamEnabled returns whether JetStream is enabled.
func (s *EmbeddedServer) JetStreamEnabled() bool {
	return s.server.JetStreamEnabled()
}

// ServerService runs an embedded NATS server under suture. Each Serve call
// starts a fresh server and shuts it down when ctx ends.
type ServerService struct {
	cfg ServerConfig

	// started receives the server once it accepts connections. Tests use it.
	started chan *EmbeddedServer
}

// NewServerService creates the supervised embedded server.
func NewServerService(cfg ServerConfig) *ServerService {
	return &ServerService{cfg: cfg, started: make(chan *EmbeddedServer, 1)}
}

// Serve implements suture.Service.
func (s *ServerService) Serve(ctx context.Context) error {
	srv, err := NewEmbeddedServer(s.cfg)
	if err != nil {
		return err
	}
	logging.Info().
		Str("component", "nats").
		Str("url", srv.ClientURL()).
		Bool("jetstream", srv.JetStreamEnabled()).
		Msg("Embedded NATS server started")

	select {
	case s.started <- srv:
	default:
	}

	<-ctx.Done()
	srv.Shutdown()
	logging.Info().Str("component", "nats").Msg("Embedded NATS server stopped")
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (s *ServerService) String() string {
	return "nats-server"
}
