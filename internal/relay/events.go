// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package relay

import "time"

// LifecycleKind names a room lifecycle transition.
type LifecycleKind string

const (
	LifecycleCreated LifecycleKind = "room.created"
	LifecycleClosed  LifecycleKind = "room.closed"
)

// LifecycleEvent is published fire-and-forget for bookkeeping by the
// data-access layer.
type LifecycleEvent struct {
	Kind         LifecycleKind `json:"event"`
	SessionCode  SessionCode   `json:"session_code"`
	At           time.Time     `json:"at"`
	Reason       string        `json:"reason,omitempty"`
	Participants int           `json:"participants"`
	Messages     uint64        `json:"messages"`
	Lifetime     float64       `json:"lifetime_seconds,omitempty"`
}

// LifecycleNotifier receives lifecycle events. Notify is called from the
// registry outside any lock and must not block.
type LifecycleNotifier interface {
	Notify(LifecycleEvent)
}

// NopNotifier discards lifecycle events.
type NopNotifier struct{}

// Notify implements LifecycleNotifier.
func (NopNotifier) Notify(LifecycleEvent) {}
