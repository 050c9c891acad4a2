// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/couchrelay/internal/auth"
	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/metrics"
	"github.com/tomtom215/couchrelay/internal/relay"
	ws "github.com/tomtom215/couchrelay/internal/websocket"
)

// Handshake rejection reasons recorded in relay_handshake_rejections_total.
const (
	RejectUnauthorized = "unauthorized"
	RejectNotFound     = "room_not_found"
	RejectConflict     = "role_conflict"
	RejectClosing      = "room_closing"
	RejectBadRequest   = "bad_request"
	RejectDraining     = "draining"
	RejectRateLimited  = "rate_limited"
	RejectRaced        = "admission_raced"
)

// errBadLastSeq is returned for a last_seq query value that is not a uint64.
var errBadLastSeq = errors.New("last_seq must be a non-negative integer")

// SessionSocket upgrades GET /ws/sessions/{code} into a relay connection.
//
// Everything that can be decided before the upgrade is: the token, the
// session code, the room lookup (a console creates the room) and the
// console conflict check. Failures there are plain JSON errors. Admission
// itself runs after the upgrade, and a loss against a concurrent handshake
// is reported to the client as an error envelope and close 1008.
func (h *Handler) SessionSocket(w http.ResponseWriter, r *http.Request) {
	log := logging.Ctx(r.Context())

	if h.draining.Load() {
		h.rejectHandshake(w, RejectDraining, http.StatusServiceUnavailable, CodeNotReady, "Server is shutting down", nil)
		return
	}

	ident, err := h.jwt.Identity(auth.ExtractToken(r))
	if err != nil {
		h.rejectRelay(w, err)
		return
	}

	code, err := relay.ParseSessionCode(chi.URLParam(r, "code"))
	if err != nil {
		h.rejectRelay(w, err)
		return
	}
	log = logging.Ctx(logging.ContextWithLogger(r.Context(), logging.WithSession(code.String())))

	lastSeq, err := parseLastSeq(r)
	if err != nil {
		h.rejectHandshake(w, RejectBadRequest, http.StatusBadRequest, CodeBadRequest, err.Error(), err)
		return
	}

	room, err := h.roomFor(code, ident)
	if err != nil {
		h.rejectRelay(w, err)
		return
	}
	if err := room.Check(ident); err != nil {
		h.rejectRelay(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn, h.connection)
	client.Start()

	res, err := room.Admit(ident, client, lastSeq)
	if err != nil {
		metrics.RecordHandshakeRejection(RejectRaced)
		log.Info().Err(err).
			Str("conn_id", client.ID()).
			Msg("admission lost after upgrade")
		client.Reject(err)
		return
	}

	client.Attach(room, res.ParticipantID)
	log.Info().
		Str("participant_id", res.ParticipantID).
		Str("conn_id", client.ID()).
		Str("role", string(res.Role)).
		Bool("resumed", res.Resumed).
		Int("replayed", res.Replayed).
		Msg("participant admitted")
}

// roomFor returns the room a handshake joins. A console may open a room
// under any valid code; everyone else needs an existing one.
func (h *Handler) roomFor(code relay.SessionCode, ident relay.Identity) (*relay.Room, error) {
	if ident.Role == relay.RoleConsole {
		room, _, err := h.registry.GetOrCreate(code)
		return room, err
	}
	return h.registry.Lookup(code)
}

func parseLastSeq(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("last_seq")
	if raw == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errBadLastSeq
	}
	return seq, nil
}

func (h *Handler) rejectRelay(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	h.rejectHandshake(w, rejectReason(code), status, code, publicMessage(status, err), err)
}

func (h *Handler) rejectHandshake(w http.ResponseWriter, reason string, status int, code, message string, err error) {
	metrics.RecordHandshakeRejection(reason)
	respondError(w, status, code, message, err)
}

func rejectReason(code string) string {
	switch code {
	case CodeUnauthorized:
		return RejectUnauthorized
	case CodeRoomNotFound:
		return RejectNotFound
	case CodeRoleConflict:
		return RejectConflict
	case CodeRoomClosing:
		return RejectClosing
	default:
		return RejectBadRequest
	}
}
