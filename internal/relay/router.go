// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package relay

import "fmt"

// Mode tells the room what to do with a routed frame.
type Mode int

const (
	// ModeForward assigns a sequence number and fans out to Recipients.
	ModeForward Mode = iota
	// ModeEcho replies to the sender with a pong.
	ModeEcho
	// ModeHeartbeat only refreshes liveness.
	ModeHeartbeat
	// ModeAck updates the sender's acknowledged sequence.
	ModeAck
	// ModeKick removes the participant named in Target.
	ModeKick
)

func (m Mode) String() string {
	switch m {
	case ModeForward:
		return "forward"
	case ModeEcho:
		return "echo"
	case ModeHeartbeat:
		return "heartbeat"
	case ModeAck:
		return "ack"
	case ModeKick:
		return "kick"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Member identifies a participant to the router.
type Member struct {
	ID   string
	Role Role
}

// Roster is the room's participant set in fan-out order. Participants in
// their grace window are included.
type Roster struct {
	Console     string
	Controllers []string
	Spectators  []string
}

func (r Roster) has(id string) bool {
	if id == "" {
		return false
	}
	if r.Console == id {
		return true
	}
	for _, c := range r.Controllers {
		if c == id {
			return true
		}
	}
	for _, s := range r.Spectators {
		if s == id {
			return true
		}
	}
	return false
}

func (r Roster) isAudience(id string) bool {
	return id != r.Console && r.has(id)
}

// Decision is the router's verdict for one frame.
type Decision struct {
	Mode       Mode
	Recipients []string
	Target     string
}

// Route is the relay's dispatch table. It is a pure function of the sender,
// the message type, the optional target and the roster, and it never
// returns the sender as a broadcast recipient.
//
//	Controller  input         Console only
//	Console     state_update  every Controller and Spectator, or the one named by to
//	any         presence      every other participant
//	any         ping          pong to the sender
//	any         pong, ack     consumed
//	Console     kick          remove the participant named by to
func Route(sender Member, t MessageType, to string, roster Roster) (Decision, error) {
	switch t {
	case TypeInput:
		if sender.Role != RoleController {
			return Decision{}, notPermitted(sender.Role, t)
		}
		var recipients []string
		if roster.Console != "" {
			recipients = []string{roster.Console}
		}
		return Decision{Mode: ModeForward, Recipients: recipients}, nil

	case TypeStateUpdate:
		if sender.Role != RoleConsole {
			return Decision{}, notPermitted(sender.Role, t)
		}
		if to != "" {
			if !roster.isAudience(to) {
				return Decision{}, fmt.Errorf("%w: %s", ErrUnknownRecipient, to)
			}
			return Decision{Mode: ModeForward, Recipients: []string{to}, Target: to}, nil
		}
		recipients := make([]string, 0, len(roster.Controllers)+len(roster.Spectators))
		recipients = append(recipients, roster.Controllers...)
		recipients = append(recipients, roster.Spectators...)
		return Decision{Mode: ModeForward, Recipients: recipients}, nil

	case TypePresence:
		return Decision{Mode: ModeForward, Recipients: allExcept(roster, sender.ID)}, nil

	case TypePing:
		return Decision{Mode: ModeEcho, Recipients: []string{sender.ID}}, nil

	case TypePong:
		return Decision{Mode: ModeHeartbeat}, nil

	case TypeAck:
		return Decision{Mode: ModeAck}, nil

	case TypeKick:
		if sender.Role != RoleConsole {
			return Decision{}, notPermitted(sender.Role, t)
		}
		if to == sender.ID || !roster.has(to) {
			return Decision{}, fmt.Errorf("%w: %s", ErrUnknownRecipient, to)
		}
		return Decision{Mode: ModeKick, Target: to}, nil

	default:
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, t)
	}
}

func notPermitted(role Role, t MessageType) error {
	return fmt.Errorf("%w: %s may not send %s", ErrRouteNotPermitted, role, t)
}

func allExcept(roster Roster, id string) []string {
	out := make([]string, 0, 1+len(roster.Controllers)+len(roster.Spectators))
	if roster.Console != "" && roster.Console != id {
		out = append(out, roster.Console)
	}
	for _, c := range roster.Controllers {
		if c != id {
			out = append(out, c)
		}
	}
	for _, s := range roster.Spectators {
		if s != id {
			out = append(out, s)
		}
	}
	return out
}
