// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package api

import (
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/couchrelay/internal/auth"
	"github.com/tomtom215/couchrelay/internal/metrics"
	"github.com/tomtom215/couchrelay/internal/relay"
)

func TestSessionSocket_Rejections(t *testing.T) {
	srv := newTestServer(t)
	console := srv.token(t, "tv-1", relay.RoleConsole)
	welcome(t, srv.mustDial(t, "/ws/sessions/LIVE42", console))

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
		wantCode   string
		reason     string
	}{
		{
			name:       "missing token",
			path:       "/ws/sessions/LIVE42",
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeUnauthorized,
			reason:     RejectUnauthorized,
		},
		{
			name:       "garbage token",
			path:       "/ws/sessions/LIVE42",
			token:      "not.a.jwt",
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeUnauthorized,
			reason:     RejectUnauthorized,
		},
		{
			name:       "malformed code",
			path:       "/ws/sessions/AB",
			token:      srv.token(t, "pad-1", relay.RoleController),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeRoomNotFound,
			reason:     RejectNotFound,
		},
		{
			name:       "controller for unknown room",
			path:       "/ws/sessions/NOPE99",
			token:      srv.token(t, "pad-1", relay.RoleController),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeRoomNotFound,
			reason:     RejectNotFound,
		},
		{
			name:       "second console",
			path:       "/ws/sessions/LIVE42",
			token:      srv.token(t, "tv-2", relay.RoleConsole),
			wantStatus: http.StatusConflict,
			wantCode:   CodeRoleConflict,
			reason:     RejectConflict,
		},
		{
			name:       "bad last_seq",
			path:       "/ws/sessions/LIVE42?last_seq=-1",
			token:      srv.token(t, "pad-1", relay.RoleController),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeBadRequest,
			reason:     RejectBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := metrics.HandshakeRejections.WithLabelValues(tt.reason)
			before := testutil.ToFloat64(counter)

			conn, resp, err := srv.dial(tt.path, tt.token)
			if err == nil {
				conn.Close()
				t.Fatal("handshake succeeded, want rejection")
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if apiErr := decodeErrorBody(t, resp); apiErr.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if got := testutil.ToFloat64(counter) - before; got != 1 {
				t.Errorf("rejections{%s} delta = %v, want 1", tt.reason, got)
			}
		})
	}
}

func TestSessionSocket_ConsoleAndController(t *testing.T) {
	srv := newTestServer(t)

	consoleConn := srv.mustDial(t, "/ws/sessions/abc123", srv.token(t, "tv-1", relay.RoleConsole))
	cw := welcome(t, consoleConn)
	if cw.SessionCode != "ABC123" || cw.Role != relay.RoleConsole {
		t.Fatalf("console welcome = %+v", cw)
	}

	padConn := srv.mustDial(t, "/ws/sessions/ABC123", srv.token(t, "pad-1", relay.RoleController))
	pw := welcome(t, padConn)
	if pw.Role != relay.RoleController || pw.Color == "" {
		t.Fatalf("controller welcome = %+v", pw)
	}

	var joined relay.PresencePayload
	if err := json.Unmarshal(readUntil(t, consoleConn, relay.TypePresence).Payload, &joined); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	if joined.Event != relay.PresenceJoined || joined.Participant.ID != pw.ParticipantID {
		t.Errorf("presence = %+v, want joined for %s", joined, pw.ParticipantID)
	}

	if err := padConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"input","payload":{"button":"A"}}`)); err != nil {
		t.Fatalf("write input: %v", err)
	}
	input := readUntil(t, consoleConn, relay.TypeInput)
	if input.From != pw.ParticipantID {
		t.Errorf("input from = %q, want %q", input.From, pw.ParticipantID)
	}
	if input.Seq == 0 {
		t.Error("forwarded input has no seq")
	}
}

func TestSessionSocket_SubprotocolToken(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "tv-1", relay.RoleConsole)

	dialer := websocket.Dialer{Subprotocols: []string{auth.Subprotocol, tok}}
	conn, resp, err := dialer.Dial(srv.wsURL("/ws/sessions/SUB123"), nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if got := conn.Subprotocol(); got != auth.Subprotocol {
		t.Errorf("negotiated subprotocol = %q, want %q", got, auth.Subprotocol)
	}
	welcome(t, conn)
}

func TestSessionSocket_Draining(t *testing.T) {
	srv := newTestServer(t)
	srv.handler.Drain()

	_, resp, err := srv.dial("/ws/sessions/ABC123", srv.token(t, "tv-1", relay.RoleConsole))
	if err == nil {
		t.Fatal("handshake succeeded while draining")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestSessionSocket_RateLimited(t *testing.T) {
	srv := newTestServer(t, withRateLimit(1))
	tok := srv.token(t, "pad-1", relay.RoleController)

	_, first, err := srv.dial("/ws/sessions/NOPE99", tok)
	if err == nil {
		t.Fatal("first handshake should fail with 404")
	}
	first.Body.Close()
	if first.StatusCode != http.StatusNotFound {
		t.Fatalf("first status = %d, want 404", first.StatusCode)
	}

	_, second, err := srv.dial("/ws/sessions/NOPE99", tok)
	if err == nil {
		t.Fatal("second handshake should be limited")
	}
	defer second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.StatusCode)
	}
	if apiErr := decodeErrorBody(t, second); apiErr.Code != CodeRateLimited {
		t.Errorf("code = %q, want %q", apiErr.Code, CodeRateLimited)
	}
}

func TestSessionSocket_ForbiddenOrigin(t *testing.T) {
	srv := newTestServer(t, withOrigins("https://couch.example"))
	tok := srv.token(t, "tv-1", relay.RoleConsole)

	header := http.Header{"Authorization": {"Bearer " + tok}, "Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(srv.wsURL("/ws/sessions/ORG123"), header)
	if err == nil {
		t.Fatal("handshake from a foreign origin succeeded")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}

	header.Set("Origin", "https://couch.example")
	conn, allowed, err := websocket.DefaultDialer.Dial(srv.wsURL("/ws/sessions/ORG123"), header)
	if allowed != nil && allowed.Body != nil {
		defer allowed.Body.Close()
	}
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"https://a.example"}, "", true},
		{"wildcard", []string{"*"}, "https://any.example", true},
		{"exact", []string{"https://a.example"}, "https://a.example", true},
		{"case and slash", []string{"https://A.example/"}, "https://a.example", true},
		{"other", []string{"https://a.example"}, "https://b.example", false},
		{"empty list", nil, "https://a.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("originChecker(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
			}
		})
	}
}

func TestParseLastSeq(t *testing.T) {
	tests := []struct {
		query   string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"last_seq=17", 17, false},
		{"last_seq=abc", 0, true},
		{"last_seq=-3", 0, true},
	}

	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/ws/sessions/ABC123?"+tt.query, nil)
		got, err := parseLastSeq(r)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseLastSeq(%q) = %d, %v", tt.query, got, err)
		}
	}
}
