// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package relay

import "time"

// Sender is the room's handle on a live connection. Implementations must
// never block: Enqueue either queues the envelope or fails with
// ErrBackpressure or ErrConnectionClosed, and Close only signals the
// connection to flush its queue and shut down.
type Sender interface {
	ID() string
	Enqueue(env *Envelope) error
	Close(code int, reason string)
}

// Identity is the verified handshake identity handed over by the auth layer.
type Identity struct {
	Subject  string
	Role     Role
	Nickname string
}

// ConnState is the participant's position in the grace-window state machine.
type ConnState int

const (
	StateConnected ConnState = iota
	StateGraceDisconnected
	StateExpired
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateGraceDisconnected:
		return "grace_disconnected"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Participant is a logical member of a room. It outlives its connection for
// the length of the grace window. All fields are guarded by the owning
// room's mutex.
type Participant struct {
	ID       string
	Subject  string
	Role     Role
	Nickname string
	Color    string
	JoinedAt time.Time

	sender        Sender
	state         ConnState
	graceDeadline time.Time
	lastAcked     uint64
	drops         int
	replay        *replayBuffer
}

func newParticipant(id string, ident Identity, color string, now time.Time, bufferSize int) *Participant {
	return &Participant{
		ID:       id,
		Subject:  ident.Subject,
		Role:     ident.Role,
		Nickname: ident.Nickname,
		Color:    color,
		JoinedAt: now,
		state:    StateConnected,
		replay:   newReplayBuffer(bufferSize),
	}
}

// Connected reports whether the participant currently has a live connection.
func (p *Participant) Connected() bool {
	return p.state == StateConnected && p.sender != nil
}

// State returns the grace-window state.
func (p *Participant) State() ConnState {
	return p.state
}

// LastAcked returns the highest sequence the participant acknowledged.
func (p *Participant) LastAcked() uint64 {
	return p.lastAcked
}

func (p *Participant) attach(s Sender) {
	p.sender = s
	p.state = StateConnected
	p.graceDeadline = time.Time{}
	p.drops = 0
}

// detach moves Connected -> GraceDisconnected.
func (p *Participant) detach(now time.Time, grace time.Duration) {
	p.sender = nil
	p.state = StateGraceDisconnected
	p.graceDeadline = now.Add(grace)
}

// graceExpired reports whether a disconnected participant outlived its window.
func (p *Participant) graceExpired(now time.Time) bool {
	return p.state == StateGraceDisconnected && !now.Before(p.graceDeadline)
}

// ack records an acknowledgement and releases buffered envelopes up to seq.
// Acks never move backwards.
func (p *Participant) ack(seq uint64) {
	if seq <= p.lastAcked {
		return
	}
	p.lastAcked = seq
	p.replay.trim(seq)
}

func (p *Participant) info() ParticipantInfo {
	return ParticipantInfo{
		ID:        p.ID,
		Role:      p.Role,
		Nickname:  p.Nickname,
		Color:     p.Color,
		Connected: p.Connected(),
	}
}

func (p *Participant) release() {
	p.sender = nil
	p.state = StateExpired
	p.replay.reset()
}

// replayBuffer is a fixed-capacity ring of forwarded envelopes addressed to
// one participant, in sequence order.
type replayBuffer struct {
	items   []*Envelope
	head    int
	size    int
	evicted uint64 // highest seq pushed out by overflow
}

func newReplayBuffer(capacity int) *replayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &replayBuffer{items: make([]*Envelope, capacity)}
}

func (b *replayBuffer) push(env *Envelope) {
	if b.size == len(b.items) {
		b.evicted = b.items[b.head].Seq
		b.items[b.head] = nil
		b.head = (b.head + 1) % len(b.items)
		b.size--
	}
	b.items[(b.head+b.size)%len(b.items)] = env
	b.size++
}

// trim drops every envelope with seq <= upTo.
func (b *replayBuffer) trim(upTo uint64) {
	for b.size > 0 && b.items[b.head].Seq <= upTo {
		b.items[b.head] = nil
		b.head = (b.head + 1) % len(b.items)
		b.size--
	}
}

// since returns the envelopes with seq > after, oldest first. truncated is
// true when overflow discarded envelopes the caller has not seen.
func (b *replayBuffer) since(after uint64) (envs []*Envelope, truncated bool) {
	for i := 0; i < b.size; i++ {
		env := b.items[(b.head+i)%len(b.items)]
		if env.Seq > after {
			envs = append(envs, env)
		}
	}
	return envs, b.evicted > after
}

func (b *replayBuffer) count() int {
	return b.size
}

func (b *replayBuffer) reset() {
	for i := range b.items {
		b.items[i] = nil
	}
	b.head, b.size, b.evicted = 0, 0, 0
}
