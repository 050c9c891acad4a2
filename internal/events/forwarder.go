// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package events

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/metrics"
	"github.com/tomtom215/couchrelay/internal/relay"
)

// drainTimeout bounds the final flush when the forwarder stops.
const drainTimeout = 2 * time.Second

// Forwarder drains a Notifier into a Publisher. It is a suture service in
// the messaging layer; a failed publish is logged and counted, never retried.
type Forwarder struct {
	notifier  *Notifier
	publisher *Publisher
}

// NewForwarder creates a forwarder.
func NewForwarder(n *Notifier, p *Publisher) *Forwarder {
	return &Forwarder{notifier: n, publisher: p}
}

// Serve implements suture.Service.
func (f *Forwarder) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			f.drain()
			return ctx.Err()
		case ev := <-f.notifier.queue:
			f.forward(ctx, ev)
		}
	}
}

// drain publishes whatever is still queued, within drainTimeout.
func (f *Forwarder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case ev := <-f.notifier.queue:
			f.forward(ctx, ev)
		default:
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, ev relay.LifecycleEvent) {
	metrics.EventQueueDepth.Set(float64(f.notifier.Pending()))

	err := f.publisher.PublishEvent(ctx, ev)
	switch {
	case err == nil:
		metrics.RecordEventPublish("published")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordEventPublish("circuit_open")
	default:
		metrics.RecordEventPublish("failed")
		logging.Warn().
			Err(err).
			Str("event", string(ev.Kind)).
			Str("session_code", string(ev.SessionCode)).
			Msg("Failed to publish lifecycle event")
	}
}

// String implements fmt.Stringer for suture logging.
func (f *Forwarder) String() string {
	return "events-forwarder"
}
