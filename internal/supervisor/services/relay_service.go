// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package services

import (
	"context"

	"github.com/tomtom215/couchrelay/internal/logging"
)

// ShutdownReason is the close reason rooms report when the process stops.
const ShutdownReason = "server_shutdown"

// Sweeper is satisfied by *relay.Registry.
type Sweeper interface {
	Run(ctx context.Context) error
	Shutdown(reason string) int
}

// ConnectionHub is satisfied by *websocket.Hub.
type ConnectionHub interface {
	RunWithContext(ctx context.Context) error
}

// RelayService owns the session registry sweep and the connection hub.
//
// They share one service so shutdown is ordered: rooms close first, which
// sends every participant a final room_closing error, and only then does the
// hub close whatever connections remain with 1001.
type RelayService struct {
	registry Sweeper
	hub      ConnectionHub
}

// NewRelayService creates the relay service.
func NewRelayService(registry Sweeper, hub ConnectionHub) *RelayService {
	return &RelayService{registry: registry, hub: hub}
}

// Serve implements suture.Service.
func (s *RelayService) Serve(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan error, 1)
	go func() { hubDone <- s.hub.RunWithContext(hubCtx) }()

	err := s.registry.Run(ctx)

	rooms := s.registry.Shutdown(ShutdownReason)
	stopHub()
	<-hubDone

	logging.Info().Int("rooms_closed", rooms).Msg("Relay stopped")
	return err
}

// String implements fmt.Stringer for suture logging.
func (s *RelayService) String() string {
	return "relay"
}
