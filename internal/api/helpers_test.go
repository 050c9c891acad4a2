// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/couchrelay/internal/auth"
	"github.com/tomtom215/couchrelay/internal/config"
	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/relay"
	ws "github.com/tomtom215/couchrelay/internal/websocket"
)

func init() {
	logging.SetLogger(zerolog.New(io.Discard))
}

const testSecret = "test-secret-with-at-least-32-characters!"

type testServer struct {
	*httptest.Server
	handler  *Handler
	registry *relay.Registry
	hub      *ws.Hub
	jwt      *auth.JWTManager
}

type serverOption func(*HandlerConfig, *ChiMiddlewareConfig)

func withRateLimit(n int) serverOption {
	return func(_ *HandlerConfig, m *ChiMiddlewareConfig) { m.RateLimitRequests = n }
}

func withRoomDetails() serverOption {
	return func(h *HandlerConfig, _ *ChiMiddlewareConfig) { h.ExposeRoomDetails = true }
}

func withOrigins(origins ...string) serverOption {
	return func(h *HandlerConfig, _ *ChiMiddlewareConfig) { h.AllowedOrigins = origins }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	jwtManager, err := auth.NewJWTManager(&config.SecurityConfig{
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
		Issuer:    "couchrelay",
	})
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}

	registry := relay.NewRegistry(relay.DefaultOptions())
	hub := ws.NewHub()

	hcfg := HandlerConfig{
		Registry:       registry,
		Hub:            hub,
		JWT:            jwtManager,
		Connection:     ws.DefaultConfig(),
		AllowedOrigins: []string{"*"},
	}
	mcfg := DefaultChiMiddlewareConfig()
	mcfg.CORSAllowedOrigins = []string{"*"}
	mcfg.RateLimitRequests = 0
	for _, opt := range opts {
		opt(&hcfg, mcfg)
	}

	handler := NewHandler(hcfg)
	router := NewRouter(handler, nil, NewChiMiddleware(mcfg))
	srv := httptest.NewServer(router.SetupChi())
	t.Cleanup(func() {
		registry.Shutdown("test_cleanup")
		srv.Close()
	})

	return &testServer{Server: srv, handler: handler, registry: registry, hub: hub, jwt: jwtManager}
}

func (s *testServer) token(t *testing.T, subject string, role relay.Role) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken(subject, role, "")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return tok
}

func (s *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

// dial opens a websocket with the token in the Authorization header.
func (s *testServer) dial(path, token string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(s.wsURL(path), header)
}

func (s *testServer) mustDial(t *testing.T, path, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := s.dial(path, token)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", path, err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads envelopes until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want relay.MessageType) *relay.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var env relay.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode envelope %s: %v", data, err)
		}
		if env.Type == want {
			return &env
		}
	}
}

func welcome(t *testing.T, conn *websocket.Conn) relay.WelcomePayload {
	t.Helper()
	env := readUntil(t, conn, relay.TypeWelcome)
	var w relay.WelcomePayload
	if err := json.Unmarshal(env.Payload, &w); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	return w
}

type apiResult struct {
	status int
	body   APIResponse
	data   map[string]interface{}
}

func (s *testServer) do(t *testing.T, method, path, token string, body []byte) apiResult {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	res := apiResult{status: resp.StatusCode}
	if err := json.Unmarshal(raw, &res.body); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if m, ok := res.body.Data.(map[string]interface{}); ok {
		res.data = m
	}
	return res
}

// decodeErrorBody reads the JSON error from a rejected handshake.
func decodeErrorBody(t *testing.T, resp *http.Response) APIError {
	t.Helper()
	if resp == nil {
		t.Fatal("no HTTP response for rejected handshake")
	}
	var body APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Success || body.Error == nil {
		t.Fatalf("body = %+v, want an error", body)
	}
	return *body.Error
}
