// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package relay

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/couchrelay/internal/validation"
)

// ProtocolVersion is the only wire protocol this relay speaks. Clients may
// offer it through Sec-WebSocket-Protocol.
const ProtocolVersion = "couchrelay.v1"

// Role is the part a participant plays in a room.
type Role string

const (
	RoleConsole    Role = "console"
	RoleController Role = "controller"
	RoleSpectator  Role = "spectator"
)

// ParseRole converts a claim value into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleConsole, RoleController, RoleSpectator:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrUnauthorized, s)
}

// MessageType is the type tag of a frame or envelope.
type MessageType string

const (
	TypeInput       MessageType = "input"
	TypeStateUpdate MessageType = "state_update"
	TypePresence    MessageType = "presence"
	TypePing        MessageType = "ping"
	TypePong        MessageType = "pong"
	TypeAck         MessageType = "ack"
	TypeKick        MessageType = "kick"

	// Server-only types. A client sending one is treated as unknown.
	TypeError   MessageType = "error"
	TypeWelcome MessageType = "welcome"
)

// WebSocket close codes used by the relay. The 4xxx range is application
// specific and tells clients whether reconnecting makes sense.
const (
	CloseNormal       = 1000
	CloseGoingAway    = 1001
	ClosePolicy       = 1008
	CloseTooBig       = 1009
	CloseTryAgain     = 1013
	CloseSuperseded   = 4001
	CloseKicked       = 4002
	CloseSlowConsumer = 4003
	CloseRemoved      = 4004
)

// Envelope is the server-to-client message. Seq is set only for client
// messages the room forwarded; server-generated envelopes carry none.
//
// Envelopes are shared between recipients and must not be modified after
// they are handed to a Sender.
type Envelope struct {
	Type    MessageType     `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TS      time.Time       `json:"ts"`
}

// MaxTypeBytes bounds the length of a frame's type tag in bytes.
const MaxTypeBytes = 32

// Frame is the client-to-server message.
type Frame struct {
	Type    MessageType     `json:"type" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
	To      string          `json:"to,omitempty" validate:"omitempty,max=64"`
}

// DecodeFrame parses one inbound frame. The payload must be a JSON object,
// null, or absent. Every failure wraps ErrDecode.
func DecodeFrame(raw []byte) (*Frame, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrDecode)
	}

	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if verr := validation.ValidateStruct(&f); verr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, verr)
	}
	if len(f.Type) > MaxTypeBytes {
		return nil, fmt.Errorf("%w: type is %d bytes, limit %d", ErrDecode, len(f.Type), MaxTypeBytes)
	}

	payload := bytes.TrimSpace(f.Payload)
	switch {
	case len(payload) == 0, bytes.Equal(payload, []byte("null")):
		f.Payload = nil
	case payload[0] != '{':
		return nil, fmt.Errorf("%w: payload must be an object", ErrDecode)
	default:
		f.Payload = payload
	}
	return &f, nil
}

// ParticipantInfo is the public view of a participant used in welcome
// rosters and presence notifications.
type ParticipantInfo struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Nickname  string `json:"nickname,omitempty"`
	Color     string `json:"color,omitempty"`
	Connected bool   `json:"connected"`
}

// Presence events.
const (
	PresenceJoined       = "joined"
	PresenceReconnected  = "reconnected"
	PresenceDisconnected = "disconnected"
	PresenceLeft         = "left"
)

// Removal reasons carried in presence "left" notifications.
const (
	ReasonLeft     = "left"
	ReasonKicked   = "kicked"
	ReasonExpired  = "expired"
	ReasonReplaced = "replaced"
	ReasonRejoined = "rejoined"
)

// PresencePayload is the payload of a server-generated presence envelope.
type PresencePayload struct {
	Event       string          `json:"event"`
	Participant ParticipantInfo `json:"participant"`
	Reason      string          `json:"reason,omitempty"`
}

// WelcomePayload is the first envelope a newly admitted connection receives.
type WelcomePayload struct {
	Protocol        string            `json:"protocol"`
	SessionCode     SessionCode       `json:"session_code"`
	ParticipantID   string            `json:"participant_id"`
	Role            Role              `json:"role"`
	Nickname        string            `json:"nickname,omitempty"`
	Color           string            `json:"color,omitempty"`
	Resumed         bool              `json:"resumed"`
	Replayed        int               `json:"replayed"`
	ReplayTruncated bool              `json:"replay_truncated,omitempty"`
	Seq             uint64            `json:"seq"`
	Roster          []ParticipantInfo `json:"roster"`
}

// ErrorPayload is the payload of an error envelope.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AckPayload is the payload clients send with an ack frame.
type AckPayload struct {
	Seq uint64 `json:"seq"`
}

// NewServerEnvelope builds an envelope without a sequence number.
func NewServerEnvelope(t MessageType, payload interface{}, now time.Time) *Envelope {
	env := &Envelope{Type: t, TS: now.UTC()}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			env.Payload = data
		}
	}
	return env
}

// ErrorEnvelope builds the error reply for err.
func ErrorEnvelope(err error, now time.Time) *Envelope {
	return NewServerEnvelope(TypeError, ErrorPayload{Code: ErrorCode(err), Message: err.Error()}, now)
}
