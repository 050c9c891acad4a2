// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

/*
Package events publishes room lifecycle events (room.created, room.closed)
to a Watermill event bus.

Publishing is fire-and-forget and never slows a room down:

	Registry --Notify--> Notifier (bounded queue) --> Forwarder --> Publisher
	                         |                                        |
	                    drop + count                       circuit breaker
	                    when full                          (sony/gobreaker)

Backends:

  - none: no publisher; the registry uses relay.NopNotifier
  - memory: Watermill gochannel, for single-process consumers and tests
  - nats: Watermill NATS JetStream publisher. The stream is created on first
    publish with EnsureStream. An embedded nats-server can be run by the
    supervisor with ServerService.

Each message carries the JSON-encoded relay.LifecycleEvent as payload, the
event kind and session code as metadata, and its UUID as Nats-Msg-Id so
JetStream drops duplicates.
*/
package events
