// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/metrics"
)

// RoomState is the lifecycle state of a room.
type RoomState int

const (
	RoomOpen RoomState = iota
	RoomActive
	RoomClosing
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomOpen:
		return "open"
	case RoomActive:
		return "active"
	case RoomClosing:
		return "closing"
	case RoomClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// controllerPalette is handed out to controllers in order; once every colour
// is taken new controllers reuse the first one.
var controllerPalette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98D8C8", "#F7DC6F",
	"#BB8FCE", "#85C1E9", "#F8B500", "#58D68D",
	"#EC7063", "#5DADE2", "#F1948A", "#82E0AA",
}

// AttachResult describes a successful admission.
type AttachResult struct {
	SessionCode     SessionCode
	ParticipantID   string
	Role            Role
	Color           string
	Resumed         bool
	Superseded      bool
	Replayed        int
	ReplayTruncated bool
}

// RoomStats is a point-in-time snapshot of one room.
type RoomStats struct {
	Code         SessionCode `json:"code"`
	State        string      `json:"state"`
	Participants int         `json:"participants"`
	Connected    int         `json:"connected"`
	HasConsole   bool        `json:"has_console"`
	Controllers  int         `json:"controllers"`
	Spectators   int         `json:"spectators"`
	Seq          uint64      `json:"seq"`
	CreatedAt    time.Time   `json:"created_at"`
	LastActivity time.Time   `json:"last_activity"`
}

// Room is the per-session concurrency domain. Every method takes the room
// mutex for the whole state change; while it is held the room only performs
// non-blocking Sender calls, never network IO.
type Room struct {
	code   SessionCode
	opts   Options
	now    func() time.Time
	logger zerolog.Logger

	mu           sync.Mutex
	state        RoomState
	createdAt    time.Time
	lastActivity time.Time
	emptySince   time.Time
	closeAfter   time.Time
	closedWith   int
	seq          uint64
	participants map[string]*Participant
	bySubject    map[string]string
	console      string
	controllers  []string
	spectators   []string
}

func newRoom(code SessionCode, opts Options, now func() time.Time) *Room {
	created := now()
	return &Room{
		code:         code,
		opts:         opts.withDefaults(),
		now:          now,
		logger:       logging.WithSession(string(code)),
		state:        RoomOpen,
		createdAt:    created,
		lastActivity: created,
		emptySince:   created,
		participants: make(map[string]*Participant),
		bySubject:    make(map[string]string),
	}
}

// Code returns the room's session code.
func (r *Room) Code() SessionCode {
	return r.code
}

// State returns the current lifecycle state.
func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Admit attaches a verified identity to the room through sender.
//
// A subject that already holds a slot with the same role resumes it: the
// participant ID is kept, any previous connection is superseded, and every
// buffered envelope after max(lastAcked, resumeFrom) is replayed. A
// different subject claiming the Console fails with ErrRoleConflict while
// the current Console is connected, and replaces it while it is in its
// grace window.
func (r *Room) Admit(ident Identity, s Sender, resumeFrom uint64) (AttachResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoomOpen && r.state != RoomActive {
		metrics.RecordAdmission(string(ident.Role), CodeRoomClosing)
		return AttachResult{}, fmt.Errorf("admit to %s: %w", r.code, ErrRoomClosing)
	}
	now := r.now()

	var existing *Participant
	if pid, ok := r.bySubject[ident.Subject]; ok {
		existing = r.participants[pid]
	}
	if existing != nil && existing.Role == ident.Role {
		return r.resumeLocked(existing, s, resumeFrom, now), nil
	}

	if ident.Role == RoleConsole && r.console != "" && (existing == nil || existing.ID != r.console) {
		if current := r.participants[r.console]; current.Connected() {
			metrics.RecordAdmission(string(ident.Role), CodeRoleConflict)
			r.logger.Info().
				Str("subject", ident.Subject).
				Str("console_id", current.ID).
				Msg("Rejected second console")
			return AttachResult{}, fmt.Errorf("admit to %s: %w", r.code, ErrRoleConflict)
		}
	}

	if existing != nil {
		r.removeLocked(existing, ReasonRejoined, now)
	}
	if ident.Role == RoleConsole && r.console != "" {
		r.removeLocked(r.participants[r.console], ReasonReplaced, now)
	}
	return r.joinLocked(ident, s, now), nil
}

// Check reports whether Admit would currently accept ident, without changing
// anything. The HTTP layer uses it to reject a handshake before the upgrade;
// Admit still makes the final decision.
func (r *Room) Check(ident Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoomOpen && r.state != RoomActive {
		return fmt.Errorf("admit to %s: %w", r.code, ErrRoomClosing)
	}
	if ident.Role != RoleConsole || r.console == "" {
		return nil
	}
	current := r.participants[r.console]
	if current.Subject != ident.Subject && current.Connected() {
		return fmt.Errorf("admit to %s: %w", r.code, ErrRoleConflict)
	}
	return nil
}

func (r *Room) joinLocked(ident Identity, s Sender, now time.Time) AttachResult {
	color := ""
	if ident.Role == RoleController {
		color = r.nextColorLocked()
	}

	p := newParticipant(uuid.NewString(), ident, color, now, r.opts.ReplayBuffer)
	p.attach(s)
	r.participants[p.ID] = p
	r.bySubject[p.Subject] = p.ID

	switch p.Role {
	case RoleConsole:
		r.console = p.ID
		r.closeAfter = time.Time{}
	case RoleController:
		r.controllers = append(r.controllers, p.ID)
	case RoleSpectator:
		r.spectators = append(r.spectators, p.ID)
	}
	r.touchLocked(now)

	r.deliverLocked(p, r.welcomeLocked(p, false, 0, false, now))
	r.presenceLocked(p.info(), PresenceJoined, "", now)

	metrics.ParticipantsActive.Inc()
	metrics.RecordAdmission(string(p.Role), "joined")
	r.logger.Info().
		Str("participant_id", p.ID).
		Str("role", string(p.Role)).
		Str("conn_id", s.ID()).
		Int("participants", len(r.participants)).
		Msg("Participant joined")

	return AttachResult{
		SessionCode:   r.code,
		ParticipantID: p.ID,
		Role:          p.Role,
		Color:         p.Color,
	}
}

func (r *Room) resumeLocked(p *Participant, s Sender, resumeFrom uint64, now time.Time) AttachResult {
	superseded := false
	if p.sender != nil && p.sender.ID() != s.ID() {
		p.sender.Close(CloseSuperseded, "superseded by a new connection")
		superseded = true
	}

	p.attach(s)
	if resumeFrom > r.seq {
		resumeFrom = r.seq
	}
	p.ack(resumeFrom)
	pending, truncated := p.replay.since(p.lastAcked)

	if p.Role == RoleConsole {
		r.closeAfter = time.Time{}
	}
	r.touchLocked(now)

	r.deliverLocked(p, r.welcomeLocked(p, true, len(pending), truncated, now))
	for _, env := range pending {
		r.deliverLocked(p, env)
	}
	r.presenceLocked(p.info(), PresenceReconnected, "", now)

	result := "resumed"
	if superseded {
		result = "superseded"
	}
	metrics.RecordAdmission(string(p.Role), result)
	metrics.RecordReplayed(len(pending))
	r.logger.Info().
		Str("participant_id", p.ID).
		Str("role", string(p.Role)).
		Str("conn_id", s.ID()).
		Bool("superseded", superseded).
		Int("replayed", len(pending)).
		Uint64("last_acked", p.lastAcked).
		Msg("Participant reconnected")

	return AttachResult{
		SessionCode:     r.code,
		ParticipantID:   p.ID,
		Role:            p.Role,
		Color:           p.Color,
		Resumed:         true,
		Superseded:      superseded,
		Replayed:        len(pending),
		ReplayTruncated: truncated,
	}
}

// Detach reports that connID, the connection of participant pid, went away.
// Reports from a superseded connection are ignored. An explicit leave removes
// the participant; anything else starts its grace window.
func (r *Room) Detach(pid, connID string, explicit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[pid]
	if !ok || p.sender == nil || p.sender.ID() != connID {
		return
	}
	now := r.now()

	if explicit {
		r.removeLocked(p, ReasonLeft, now)
		return
	}

	p.detach(now, r.opts.GraceWindow)
	r.presenceLocked(p.info(), PresenceDisconnected, "", now)
	r.logger.Info().
		Str("participant_id", p.ID).
		Str("role", string(p.Role)).
		Time("grace_deadline", p.graceDeadline).
		Msg("Participant disconnected, holding slot")
}

// Remove detaches participant pid for good and notifies the others.
// It reports false when the room does not hold pid.
func (r *Room) Remove(pid, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[pid]
	if !ok {
		return false
	}
	r.removeLocked(p, reason, r.now())
	return true
}

func (r *Room) removeLocked(p *Participant, reason string, now time.Time) {
	info := p.info()
	info.Connected = false

	delete(r.participants, p.ID)
	if r.bySubject[p.Subject] == p.ID {
		delete(r.bySubject, p.Subject)
	}

	switch p.Role {
	case RoleConsole:
		r.console = ""
		if reason == ReasonExpired {
			r.closeAfter = now
		} else {
			r.closeAfter = now.Add(r.opts.ConsoleGrace)
		}
	case RoleController:
		r.controllers = without(r.controllers, p.ID)
	case RoleSpectator:
		r.spectators = without(r.spectators, p.ID)
	}

	if p.sender != nil {
		p.sender.Close(closeCodeFor(reason), reason)
	}
	p.release()

	r.presenceLocked(info, PresenceLeft, reason, now)
	if len(r.participants) == 0 {
		r.emptySince = now
	}
	r.lastActivity = now

	metrics.ParticipantsActive.Dec()
	r.logger.Info().
		Str("participant_id", p.ID).
		Str("role", string(p.Role)).
		Str("reason", reason).
		Int("participants", len(r.participants)).
		Msg("Participant removed")
}

// Route classifies a frame that connection connID read for participant pid
// and delivers it. A frame from a connection other than the participant's
// current one fails with ErrNotParticipant. Router rejections are answered
// with an error envelope to the sender and returned; nothing is forwarded
// for them.
func (r *Room) Route(pid, connID string, f *Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoomOpen && r.state != RoomActive {
		return ErrRoomClosing
	}
	p, ok := r.participants[pid]
	if !ok || !p.Connected() || p.sender.ID() != connID {
		return ErrNotParticipant
	}
	now := r.now()
	r.lastActivity = now

	d, err := Route(Member{ID: p.ID, Role: p.Role}, f.Type, f.To, r.rosterLocked())
	if err != nil {
		r.rejectLocked(p, err, now)
		return err
	}

	switch d.Mode {
	case ModeEcho:
		r.deliverLocked(p, &Envelope{Type: TypePong, Payload: f.Payload, TS: now.UTC()})

	case ModeHeartbeat:

	case ModeAck:
		var ack AckPayload
		if len(f.Payload) == 0 || json.Unmarshal(f.Payload, &ack) != nil {
			err := fmt.Errorf("%w: ack requires a numeric seq", ErrDecode)
			r.rejectLocked(p, err, now)
			return err
		}
		if ack.Seq > r.seq {
			ack.Seq = r.seq
		}
		p.ack(ack.Seq)

	case ModeKick:
		r.removeLocked(r.participants[d.Target], ReasonKicked, now)

	case ModeForward:
		r.seq++
		env := &Envelope{
			Type:    f.Type,
			From:    p.ID,
			To:      d.Target,
			Seq:     r.seq,
			Payload: f.Payload,
			TS:      now.UTC(),
		}
		for _, id := range d.Recipients {
			recipient := r.participants[id]
			recipient.replay.push(env)
			r.deliverLocked(recipient, env)
		}
		metrics.RecordRouted(string(f.Type))
	}
	return nil
}

func (r *Room) rejectLocked(p *Participant, err error, now time.Time) {
	metrics.RecordFrameError(ErrorCode(err))
	r.logger.Debug().
		Err(err).
		Str("participant_id", p.ID).
		Str("role", string(p.Role)).
		Msg("Frame rejected")
	r.deliverLocked(p, ErrorEnvelope(err, now))
}

// deliverLocked pushes env onto p's outbound queue. A full queue affects p
// alone: the envelope is dropped for p (it stays in p's replay buffer when it
// was forwarded) and, past the slow-consumer limit, p's connection is closed
// so the client reconnects and catches up by replay.
func (r *Room) deliverLocked(p *Participant, env *Envelope) {
	if p.sender == nil {
		return
	}

	err := p.sender.Enqueue(env)
	switch {
	case err == nil:
		p.drops = 0
		metrics.RecordDelivered()
	case errors.Is(err, ErrBackpressure):
		p.drops++
		metrics.RecordDropped("backpressure")
		r.logger.Warn().
			Str("participant_id", p.ID).
			Str("type", string(env.Type)).
			Uint64("seq", env.Seq).
			Int("consecutive_drops", p.drops).
			Msg("Outbound queue full, dropped envelope for recipient")
		if r.opts.SlowConsumerLimit > 0 && p.drops >= r.opts.SlowConsumerLimit {
			r.logger.Warn().
				Str("participant_id", p.ID).
				Int("consecutive_drops", p.drops).
				Msg("Closing slow consumer")
			p.sender.Close(CloseSlowConsumer, "slow consumer")
		}
	default:
		metrics.RecordDropped("closed")
	}
}

// presenceLocked tells every connected participant except subject about it.
func (r *Room) presenceLocked(subject ParticipantInfo, event, reason string, now time.Time) {
	env := NewServerEnvelope(TypePresence, PresencePayload{
		Event:       event,
		Participant: subject,
		Reason:      reason,
	}, now)
	for _, id := range r.orderLocked() {
		if id == subject.ID {
			continue
		}
		r.deliverLocked(r.participants[id], env)
	}
}

func (r *Room) welcomeLocked(p *Participant, resumed bool, replayed int, truncated bool, now time.Time) *Envelope {
	return NewServerEnvelope(TypeWelcome, WelcomePayload{
		Protocol:        ProtocolVersion,
		SessionCode:     r.code,
		ParticipantID:   p.ID,
		Role:            p.Role,
		Nickname:        p.Nickname,
		Color:           p.Color,
		Resumed:         resumed,
		Replayed:        replayed,
		ReplayTruncated: truncated,
		Seq:             r.seq,
		Roster:          r.rosterInfoLocked(),
	}, now)
}

// Expire removes every participant whose grace window has passed and
// returns how many were removed.
func (r *Room) Expire(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoomOpen && r.state != RoomActive {
		return 0
	}
	expired := 0
	for _, id := range r.orderLocked() {
		p := r.participants[id]
		if p.graceExpired(now) {
			r.removeLocked(p, ReasonExpired, now)
			expired++
		}
	}
	return expired
}

// closeDue reports whether the room should close at now, and why.
func (r *Room) closeDue(now time.Time) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeDueLocked(now)
}

func (r *Room) closeDueLocked(now time.Time) (string, bool) {
	if r.state != RoomOpen && r.state != RoomActive {
		return "", false
	}
	if !r.closeAfter.IsZero() && !now.Before(r.closeAfter) {
		return "console_gone", true
	}
	if len(r.participants) == 0 && now.Sub(r.emptySince) >= r.opts.IdleTimeout {
		return "idle", true
	}
	return "", false
}

// closeIfDue closes the room when closeDue holds. The check and the close
// share one critical section.
func (r *Room) closeIfDue(now time.Time) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reason, due := r.closeDueLocked(now)
	if !due {
		return "", false
	}
	r.closeLocked(reason)
	return reason, true
}

// closeIfRemovable closes the room only if it is empty and past its idle
// window.
func (r *Room) closeIfRemovable(now time.Time, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removable := (r.state == RoomOpen || r.state == RoomActive) &&
		len(r.participants) == 0 &&
		now.Sub(r.emptySince) >= r.opts.IdleTimeout
	if !removable {
		return false
	}
	r.closeLocked(reason)
	return true
}

// Close moves the room through Closing to Closed. Every participant gets a
// final room_closing error before its connection is asked to drain and
// close. It reports false if the room was already closing.
func (r *Room) Close(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == RoomClosing || r.state == RoomClosed {
		return false
	}
	r.closeLocked(reason)
	return true
}

func (r *Room) closeLocked(reason string) {
	r.state = RoomClosing
	r.closedWith = len(r.participants)
	now := r.now()

	final := ErrorEnvelope(fmt.Errorf("%w: %s", ErrRoomClosing, reason), now)
	for _, id := range r.orderLocked() {
		p := r.participants[id]
		if p.sender != nil {
			_ = p.sender.Enqueue(final)
			p.sender.Close(CloseGoingAway, "room closing")
		}
		p.release()
		metrics.ParticipantsActive.Dec()
	}

	r.participants = make(map[string]*Participant)
	r.bySubject = make(map[string]string)
	r.console = ""
	r.controllers = nil
	r.spectators = nil
	r.state = RoomClosed

	r.logger.Info().
		Str("reason", reason).
		Uint64("messages", r.seq).
		Dur("lifetime", now.Sub(r.createdAt)).
		Msg("Room closed")
}

type closeSummary struct {
	participants int
	seq          uint64
	createdAt    time.Time
}

func (r *Room) closeSummary() closeSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return closeSummary{participants: r.closedWith, seq: r.seq, createdAt: r.createdAt}
}

// Stats returns a snapshot of the room.
func (r *Room) Stats() RoomStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	connected := 0
	for _, p := range r.participants {
		if p.Connected() {
			connected++
		}
	}
	return RoomStats{
		Code:         r.code,
		State:        r.state.String(),
		Participants: len(r.participants),
		Connected:    connected,
		HasConsole:   r.console != "",
		Controllers:  len(r.controllers),
		Spectators:   len(r.spectators),
		Seq:          r.seq,
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
	}
}

// Roster returns the public view of every participant in fan-out order.
func (r *Room) Roster() []ParticipantInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterInfoLocked()
}

// Participant returns the public view of participant pid.
func (r *Room) Participant(pid string) (ParticipantInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[pid]
	if !ok {
		return ParticipantInfo{}, false
	}
	return p.info(), true
}

func (r *Room) touchLocked(now time.Time) {
	if r.state == RoomOpen {
		r.state = RoomActive
	}
	r.lastActivity = now
	r.emptySince = time.Time{}
}

func (r *Room) rosterLocked() Roster {
	return Roster{Console: r.console, Controllers: r.controllers, Spectators: r.spectators}
}

func (r *Room) orderLocked() []string {
	ids := make([]string, 0, len(r.participants))
	if r.console != "" {
		ids = append(ids, r.console)
	}
	ids = append(ids, r.controllers...)
	ids = append(ids, r.spectators...)
	return ids
}

func (r *Room) rosterInfoLocked() []ParticipantInfo {
	ids := r.orderLocked()
	out := make([]ParticipantInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.participants[id].info())
	}
	return out
}

func (r *Room) nextColorLocked() string {
	used := make(map[string]bool, len(r.controllers))
	for _, id := range r.controllers {
		used[r.participants[id].Color] = true
	}
	for _, c := range controllerPalette {
		if !used[c] {
			return c
		}
	}
	return controllerPalette[0]
}

func closeCodeFor(reason string) int {
	switch reason {
	case ReasonLeft:
		return CloseNormal
	case ReasonKicked:
		return CloseKicked
	case ReasonReplaced, ReasonRejoined:
		return CloseSuperseded
	default:
		return CloseRemoved
	}
}

func without(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
