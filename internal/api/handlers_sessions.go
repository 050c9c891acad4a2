// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/couchrelay/internal/auth"
	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/relay"
	"github.com/tomtom215/couchrelay/internal/validation"
)

// maxCreateBody bounds the session-create request body.
const maxCreateBody = 1024

// CreateSessionRequest is the optional body of POST /api/v1/sessions. An
// empty body asks for a generated code.
type CreateSessionRequest struct {
	Code string `json:"code,omitempty" validate:"omitempty,len=6,alphanum"`
}

// CreateSessionResponse is returned with 201.
type CreateSessionResponse struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	WSPath    string    `json:"ws_path"`
}

// CreateSession opens a new room for the authenticated console.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	var req CreateSessionRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCreateBody+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "Could not read request body", err)
		return
	}
	if len(body) > maxCreateBody {
		respondError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "Request body too large", nil)
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, http.StatusBadRequest, CodeBadRequest, "Request body must be a JSON object", err)
			return
		}
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, verr)
		return
	}

	room, err := h.createRoom(req.Code)
	if err != nil {
		if errors.Is(err, errSessionExists) {
			respondError(w, http.StatusConflict, CodeSessionExists, "A session with this code already exists", nil)
			return
		}
		respondRelayError(w, err)
		return
	}

	stats := room.Stats()
	logging.Ctx(r.Context()).Info().
		Str("session_code", room.Code().String()).
		Str("subject", ident.Subject).
		Msg("session created")

	respondData(w, http.StatusCreated, CreateSessionResponse{
		Code:      room.Code().String(),
		CreatedAt: stats.CreatedAt,
		WSPath:    "/ws/sessions/" + room.Code().String(),
	})
}

var errSessionExists = errors.New("session exists")

func (h *Handler) createRoom(requested string) (*relay.Room, error) {
	if requested == "" {
		return h.registry.Create()
	}

	code, err := relay.ParseSessionCode(requested)
	if err != nil {
		return nil, err
	}
	room, created, err := h.registry.GetOrCreate(code)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, errSessionExists
	}
	return room, nil
}
