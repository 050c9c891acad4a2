// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package relay

import "errors"

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w", err) and
// classify with errors.Is; ErrorCode maps them onto the wire.
var (
	// ErrDecode is returned for a frame that is not valid JSON or fails validation.
	ErrDecode = errors.New("malformed frame")

	// ErrRateLimited is returned when a connection exceeds its inbound token bucket.
	ErrRateLimited = errors.New("inbound rate limit exceeded")

	// ErrUnauthorized is returned when the handshake identity cannot be verified.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRoleConflict is returned when a second live Console claims a room.
	ErrRoleConflict = errors.New("room already has a connected console")

	// ErrRoomClosing is returned when a room no longer accepts admissions.
	ErrRoomClosing = errors.New("room is closing")

	// ErrRoomNotFound is returned for a session code with no live room.
	ErrRoomNotFound = errors.New("room not found")

	// ErrBackpressure is returned when a recipient's outbound queue is full.
	ErrBackpressure = errors.New("outbound queue full")

	// ErrUnknownMessageType is returned for a type the router cannot classify.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrRouteNotPermitted is returned for a known type sent by a role that may not send it.
	ErrRouteNotPermitted = errors.New("message type not permitted for role")

	// ErrUnknownRecipient is returned when a targeted message names no current participant.
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrNotParticipant is returned when a frame arrives for a participant the room no longer holds.
	ErrNotParticipant = errors.New("not a participant of this room")

	// ErrConnectionClosed is returned when enqueueing on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrCodeSpaceExhausted is returned when no unused session code could be generated.
	ErrCodeSpaceExhausted = errors.New("could not allocate a free session code")
)

// Wire error codes carried in error envelopes.
const (
	CodeDecode          = "decode_error"
	CodeRateLimited     = "rate_limited"
	CodeUnauthorized    = "unauthorized"
	CodeRoleConflict    = "role_conflict"
	CodeRoomClosing     = "room_closing"
	CodeRoomNotFound    = "room_not_found"
	CodeBackpressure    = "backpressure"
	CodeUnknownType     = "unknown_type"
	CodeNotPermitted    = "not_permitted"
	CodeUnknownTarget   = "unknown_recipient"
	CodeNotParticipant  = "not_participant"
	CodeInternal        = "internal_error"
	CodeConnectionClose = "connection_closed"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrDecode, CodeDecode},
	{ErrRateLimited, CodeRateLimited},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrRoleConflict, CodeRoleConflict},
	{ErrRoomClosing, CodeRoomClosing},
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrBackpressure, CodeBackpressure},
	{ErrUnknownMessageType, CodeUnknownType},
	{ErrRouteNotPermitted, CodeNotPermitted},
	{ErrUnknownRecipient, CodeUnknownTarget},
	{ErrNotParticipant, CodeNotParticipant},
	{ErrConnectionClosed, CodeConnectionClose},
}

// ErrorCode returns the wire code for err, or "internal_error" when err is
// not one of the relay sentinels.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}
