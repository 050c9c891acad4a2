// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package relay

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/couchrelay/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

// fakeSender records what the room enqueues. Setting full makes Enqueue
// report backpressure.
type fakeSender struct {
	id string

	mu        sync.Mutex
	queue     []*Envelope
	full      bool
	closed    bool
	closeCode int
}

func newFakeSender() *fakeSender {
	return &fakeSender{id: uuid.NewString()}
}

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) Enqueue(env *Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnectionClosed
	}
	if f.full {
		return ErrBackpressure
	}
	f.queue = append(f.queue, env)
	return nil
}

func (f *fakeSender) Close(code int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.closeCode = code
	}
}

func (f *fakeSender) setFull(full bool) {
	f.mu.Lock()
	f.full = full
	f.mu.Unlock()
}

func (f *fakeSender) isClosed() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode
}

// drain returns and clears everything queued so far.
func (f *fakeSender) drain() []*Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.queue
	f.queue = nil
	return out
}

// take returns and clears queued envelopes of type t, discarding the rest.
func (f *fakeSender) take(t MessageType) []*Envelope {
	var out []*Envelope
	for _, env := range f.drain() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (n *recordingNotifier) Notify(ev LifecycleEvent) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) kinds() []LifecycleKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]LifecycleKind, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

func testOptions() Options {
	return Options{
		GraceWindow:   30 * time.Second,
		ConsoleGrace:  20 * time.Second,
		IdleTimeout:   10 * time.Minute,
		SweepInterval: time.Second,
		ReplayBuffer:  16,
	}
}

func newTestRoom(t *testing.T, opts Options) (*Room, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return newRoom("ABC123", opts, clock.Now), clock
}

type member struct {
	id     string
	sender *fakeSender
}

func admit(t *testing.T, room *Room, subject string, role Role) member {
	t.Helper()
	s := newFakeSender()
	res, err := room.Admit(Identity{Subject: subject, Role: role, Nickname: subject}, s, 0)
	if err != nil {
		t.Fatalf("admit %s as %s: %v", subject, role, err)
	}
	return member{id: res.ParticipantID, sender: s}
}

func frame(t MessageType, payload string) *Frame {
	f := &Frame{Type: t}
	if payload != "" {
		f.Payload = json.RawMessage(payload)
	}
	return f
}

func presenceOf(t *testing.T, env *Envelope) PresencePayload {
	t.Helper()
	var p PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	return p
}

func errorOf(t *testing.T, env *Envelope) ErrorPayload {
	t.Helper()
	var p ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p
}

func welcomeOf(t *testing.T, env *Envelope) WelcomePayload {
	t.Helper()
	var p WelcomePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	return p
}

func seqs(envs []*Envelope) []uint64 {
	out := make([]uint64, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.Seq)
	}
	return out
}

func equalSeqs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
