// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package relay

import "time"

// Options are the room and registry policy values.
type Options struct {
	// GraceWindow is how long a disconnected participant keeps its slot.
	GraceWindow time.Duration

	// ConsoleGrace is how long a room survives after its Console was removed,
	// waiting for a new Console.
	ConsoleGrace time.Duration

	// IdleTimeout closes rooms that have had zero participants this long.
	IdleTimeout time.Duration

	// SweepInterval is the period of Registry.Run.
	SweepInterval time.Duration

	// ReplayBuffer is the per-participant replay capacity in envelopes.
	ReplayBuffer int

	// SlowConsumerLimit closes a connection after this many consecutive
	// backpressure drops. Zero disables it.
	SlowConsumerLimit int
}

// DefaultOptions returns the policy values used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		GraceWindow:       45 * time.Second,
		ConsoleGrace:      45 * time.Second,
		IdleTimeout:       10 * time.Minute,
		SweepInterval:     time.Second,
		ReplayBuffer:      256,
		SlowConsumerLimit: 64,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.GraceWindow <= 0 {
		o.GraceWindow = d.GraceWindow
	}
	if o.ConsoleGrace <= 0 {
		o.ConsoleGrace = o.GraceWindow
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = d.IdleTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.ReplayBuffer <= 0 {
		o.ReplayBuffer = d.ReplayBuffer
	}
	if o.SlowConsumerLimit < 0 {
		o.SlowConsumerLimit = 0
	}
	return o
}
