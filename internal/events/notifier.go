// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package events

import (
	"sync/atomic"

	"github.com/tomtom215/couchrelay/internal/metrics"
	"github.com/tomtom215/couchrelay/internal/relay"
)

// Notifier is the registry's relay.LifecycleNotifier. Notify only pushes
// onto a bounded queue; a Forwarder drains it to the event bus.
type Notifier struct {
	queue   chan relay.LifecycleEvent
	dropped atomic.Uint64
}

// NewNotifier creates a notifier with room for size pending events.
func NewNotifier(size int) *Notifier {
	if size <= 0 {
		size = 1024
	}
	return &Notifier{queue: make(chan relay.LifecycleEvent, size)}
}

// Notify queues ev without blocking. A full queue drops ev.
func (n *Notifier) Notify(ev relay.LifecycleEvent) {
	select {
	case n.queue <- ev:
		metrics.EventQueueDepth.Set(float64(len(n.queue)))
	default:
		n.dropped.Add(1)
		metrics.RecordEventPublish("dropped")
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Pending returns the number of queued events.
func (n *Notifier) Pending() int {
	return len(n.queue)
}

var _ relay.LifecycleNotifier = (*Notifier)(nil)
