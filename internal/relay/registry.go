// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/metrics"
)

// Registry is the process-wide table of live rooms. It is the only state
// shared between rooms; every mutation goes through GetOrCreate, Remove,
// Sweep or Shutdown.
type Registry struct {
	opts     Options
	notifier LifecycleNotifier
	now      func() time.Time
	logger   zerolog.Logger

	mu    sync.RWMutex
	rooms map[SessionCode]*Room
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// WithNotifier sets the lifecycle event sink.
func WithNotifier(n LifecycleNotifier) RegistryOption {
	return func(r *Registry) {
		if n != nil {
			r.notifier = n
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options, options ...RegistryOption) *Registry {
	r := &Registry{
		opts:     opts.withDefaults(),
		notifier: NopNotifier{},
		now:      time.Now,
		logger:   logging.WithComponent("registry"),
		rooms:    make(map[SessionCode]*Room),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Options returns the effective policy values.
func (r *Registry) Options() Options {
	return r.opts
}

// GetOrCreate returns the room for code, creating it if needed. Concurrent
// callers for the same code observe the same instance. A room that is
// closing cannot be joined; a closed room still in the table is replaced.
func (r *Registry) GetOrCreate(code SessionCode) (*Room, bool, error) {
	r.mu.RLock()
	room, ok := r.rooms[code]
	r.mu.RUnlock()
	if ok {
		switch room.State() {
		case RoomOpen, RoomActive:
			return room, false, nil
		case RoomClosing:
			return nil, false, fmt.Errorf("room %s: %w", code, ErrRoomClosing)
		}
	}

	r.mu.Lock()
	room, ok = r.rooms[code]
	if ok {
		switch room.State() {
		case RoomOpen, RoomActive:
			r.mu.Unlock()
			return room, false, nil
		case RoomClosing:
			r.mu.Unlock()
			return nil, false, fmt.Errorf("room %s: %w", code, ErrRoomClosing)
		}
	}
	room = newRoom(code, r.opts, r.now)
	r.rooms[code] = room
	count := len(r.rooms)
	r.mu.Unlock()

	metrics.RoomsActive.Set(float64(count))
	r.logger.Info().Str("session_code", string(code)).Int("rooms", count).Msg("Room created")
	r.notifier.Notify(LifecycleEvent{
		Kind:        LifecycleCreated,
		SessionCode: code,
		At:          room.createdAt.UTC(),
	})
	return room, true, nil
}

// Create allocates a fresh, unused session code and its room.
func (r *Registry) Create() (*Room, error) {
	r.mu.Lock()
	code, err := GenerateSessionCode(func(c SessionCode) bool {
		_, taken := r.rooms[c]
		return taken
	})
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	room := newRoom(code, r.opts, r.now)
	r.rooms[code] = room
	count := len(r.rooms)
	r.mu.Unlock()

	metrics.RoomsActive.Set(float64(count))
	r.logger.Info().Str("session_code", string(code)).Int("rooms", count).Msg("Room created")
	r.notifier.Notify(LifecycleEvent{
		Kind:        LifecycleCreated,
		SessionCode: code,
		At:          room.createdAt.UTC(),
	})
	return room, nil
}

// Lookup returns the live room for code.
func (r *Registry) Lookup(code SessionCode) (*Room, error) {
	r.mu.RLock()
	room, ok := r.rooms[code]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("room %s: %w", code, ErrRoomNotFound)
	}
	switch room.State() {
	case RoomClosing:
		return nil, fmt.Errorf("room %s: %w", code, ErrRoomClosing)
	case RoomClosed:
		return nil, fmt.Errorf("room %s: %w", code, ErrRoomNotFound)
	}
	return room, nil
}

// Remove closes and drops the room for code, but only when it is empty and
// past its idle window. It reports whether the room was removed.
func (r *Registry) Remove(code SessionCode) bool {
	now := r.now()

	r.mu.Lock()
	room, ok := r.rooms[code]
	if !ok || !room.closeIfRemovable(now, "removed") {
		r.mu.Unlock()
		return false
	}
	delete(r.rooms, code)
	count := len(r.rooms)
	r.mu.Unlock()

	metrics.RoomsActive.Set(float64(count))
	r.closed(room, "removed", now)
	return true
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Expired int
	Closed  int
}

// Sweep expires grace windows, closes rooms that lost their Console or sat
// empty past the idle timeout, and drops closed rooms from the table.
func (r *Registry) Sweep() SweepResult {
	now := r.now()

	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	var result SweepResult
	type closedRoom struct {
		room   *Room
		reason string
	}
	var closed []closedRoom

	for _, room := range rooms {
		result.Expired += room.Expire(now)
		if reason, closedNow := room.closeIfDue(now); closedNow {
			closed = append(closed, closedRoom{room: room, reason: reason})
		}
	}

	r.mu.Lock()
	for code, room := range r.rooms {
		if room.State() == RoomClosed {
			delete(r.rooms, code)
		}
	}
	count := len(r.rooms)
	r.mu.Unlock()
	metrics.RoomsActive.Set(float64(count))

	for _, c := range closed {
		r.closed(c.room, c.reason, now)
	}
	result.Closed = len(closed)

	if result.Expired > 0 || result.Closed > 0 {
		r.logger.Debug().
			Int("expired", result.Expired).
			Int("closed", result.Closed).
			Int("rooms", count).
			Msg("Sweep completed")
	}
	return result
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.opts.SweepInterval).Msg("Registry sweeper started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Registry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Shutdown closes every room and empties the table.
func (r *Registry) Shutdown(reason string) int {
	now := r.now()

	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for code, room := range r.rooms {
		rooms = append(rooms, room)
		delete(r.rooms, code)
	}
	r.mu.Unlock()
	metrics.RoomsActive.Set(0)

	closed := 0
	for _, room := range rooms {
		if room.Close(reason) {
			closed++
			r.closed(room, reason, now)
		}
	}
	r.logger.Info().Int("rooms", closed).Str("reason", reason).Msg("Registry shut down")
	return closed
}

func (r *Registry) closed(room *Room, reason string, now time.Time) {
	summary := room.closeSummary()
	lifetime := now.Sub(summary.createdAt)
	metrics.RecordRoomClosed(lifetime)
	r.notifier.Notify(LifecycleEvent{
		Kind:         LifecycleClosed,
		SessionCode:  room.Code(),
		At:           now.UTC(),
		Reason:       reason,
		Participants: summary.participants,
		Messages:     summary.seq,
		Lifetime:     lifetime.Seconds(),
	})
}

// Stats is a registry-wide snapshot.
type Stats struct {
	Rooms        int            `json:"rooms"`
	Participants int            `json:"participants"`
	Connected    int            `json:"connected"`
	ByState      map[string]int `json:"by_state"`
	RoomDetails  []RoomStats    `json:"room_details,omitempty"`
}

// Stats returns counts across every room. Room details are included when
// detailed is true.
func (r *Registry) Stats(detailed bool) Stats {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	s := Stats{Rooms: len(rooms), ByState: make(map[string]int)}
	for _, room := range rooms {
		rs := room.Stats()
		s.Participants += rs.Participants
		s.Connected += rs.Connected
		s.ByState[rs.State]++
		if detailed {
			s.RoomDetails = append(s.RoomDetails, rs)
		}
	}
	sort.Slice(s.RoomDetails, func(i, j int) bool {
		return s.RoomDetails[i].Code < s.RoomDetails[j].Code
	})
	return s
}
