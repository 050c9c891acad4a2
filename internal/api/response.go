// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/relay"
	"github.com/tomtom215/couchrelay/internal/validation"
)

// Error codes carried in the JSON error body.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodeRoleConflict     = "ROLE_CONFLICT"
	CodeRoomClosing      = "ROOM_CLOSING"
	CodeSessionExists    = "SESSION_EXISTS"
	CodeRateLimited      = "RATE_LIMITED"
	CodeValidation       = "VALIDATION_ERROR"
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotReady         = "NOT_READY"
	CodeInternal         = "INTERNAL_ERROR"
	CodeCapacity         = "CODE_SPACE_EXHAUSTED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError is the error part of a failed response.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&result, "\\x%02x", r)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers
func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData sends a successful response wrapping data.
func respondData(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, &APIResponse{Success: true, Data: data})
}

// respondError sends an error response. err is only logged.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		event := logging.Warn()
		if status >= http.StatusInternalServerError {
			event = logging.Error()
		}
		event.Str("code", code).Int("status", status).Str("error", sanitizeLogValue(err.Error())).Msg("API error")
	}

	respondJSON(w, status, &APIResponse{
		Error: &APIError{Code: code, Message: message},
	})
}

// respondValidationError sends a 400 listing every invalid field.
func respondValidationError(w http.ResponseWriter, verr *validation.RequestValidationError) {
	respondJSON(w, http.StatusBadRequest, &APIResponse{
		Error: &APIError{
			Code:    CodeValidation,
			Message: verr.Error(),
			Details: verr.Fields(),
		},
	})
}

// statusFor maps a relay error onto an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, relay.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, relay.ErrRoomNotFound):
		return http.StatusNotFound, CodeRoomNotFound
	case errors.Is(err, relay.ErrRoleConflict):
		return http.StatusConflict, CodeRoleConflict
	case errors.Is(err, relay.ErrRoomClosing):
		return http.StatusGone, CodeRoomClosing
	case errors.Is(err, relay.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	case errors.Is(err, relay.ErrCodeSpaceExhausted):
		return http.StatusServiceUnavailable, CodeCapacity
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondRelayError sends the response statusFor picks for err. The message
// is the sentinel text, never the wrapped detail.
func respondRelayError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	respondError(w, status, code, publicMessage(status, err), err)
}

func publicMessage(status int, err error) string {
	for _, sentinel := range []error{
		relay.ErrUnauthorized, relay.ErrRoomNotFound, relay.ErrRoleConflict,
		relay.ErrRoomClosing, relay.ErrRateLimited, relay.ErrCodeSpaceExhausted,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return http.StatusText(status)
}
