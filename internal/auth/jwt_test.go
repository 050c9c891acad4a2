// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/couchrelay/internal/config"
	"github.com/tomtom215/couchrelay/internal/relay"
)

const testSecret = "this_is_a_very_long_secret_key_for_testing_purposes_12345"

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
		Issuer:    "couchrelay",
	})
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	return m
}

// sign builds a token from arbitrary claims with the test secret.
func sign(t *testing.T, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func baseClaims() *Claims {
	now := time.Now()
	return &Claims{
		Role:      "controller",
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "player-1",
			Issuer:    "couchrelay",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestNewJWTManager(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.SecurityConfig
		wantErr bool
	}{
		{
			name:    "valid secret",
			cfg:     &config.SecurityConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
			wantErr: false,
		},
		{
			name:    "empty secret",
			cfg:     &config.SecurityConfig{JWTSecret: "", TokenTTL: time.Hour},
			wantErr: true,
		},
		{
			name:    "zero ttl uses default",
			cfg:     &config.SecurityConfig{JWTSecret: testSecret},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewJWTManager(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("NewJWTManager() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewJWTManager() unexpected error = %v", err)
			}
			if manager.timeout <= 0 {
				t.Errorf("timeout = %v, want positive", manager.timeout)
			}
		})
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	manager := newTestManager(t)

	tests := []struct {
		name     string
		subject  string
		role     relay.Role
		nickname string
		wantErr  bool
	}{
		{name: "console", subject: "tv-livingroom", role: relay.RoleConsole},
		{name: "controller with nickname", subject: "phone-1", role: relay.RoleController, nickname: "Player One"},
		{name: "spectator", subject: "tablet", role: relay.RoleSpectator},
		{name: "unknown role", subject: "x", role: relay.Role("admin"), wantErr: true},
		{name: "bad nickname", subject: "x", role: relay.RoleController, nickname: "<script>", wantErr: true},
		{name: "empty subject", subject: "", role: relay.RoleController, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := manager.GenerateToken(tt.subject, tt.role, tt.nickname)
			if tt.wantErr {
				if err == nil {
					t.Error("GenerateToken() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}

			claims, err := manager.ValidateToken(token)
			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}
			if claims.Subject != tt.subject {
				t.Errorf("Subject = %q, want %q", claims.Subject, tt.subject)
			}
			if claims.Role != string(tt.role) {
				t.Errorf("Role = %q, want %q", claims.Role, tt.role)
			}
			if claims.ID == "" {
				t.Error("expected a jti")
			}

			ident, err := manager.Identity(token)
			if err != nil {
				t.Fatalf("Identity() error = %v", err)
			}
			want := relay.Identity{Subject: tt.subject, Role: tt.role, Nickname: tt.nickname}
			if ident != want {
				t.Errorf("Identity() = %+v, want %+v", ident, want)
			}
		})
	}
}

func TestValidateToken_Invalid(t *testing.T) {
	manager := newTestManager(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"truncated", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiJ4In0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := manager.ValidateToken(tt.token)
			if err == nil {
				t.Error("ValidateToken() expected error for invalid token, got nil")
			}
			if claims != nil {
				t.Error("ValidateToken() expected nil claims for invalid token")
			}
		})
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	manager1 := newTestManager(t)
	manager2, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret: "second_secret_key_that_is_different_from_first_12345",
		Issuer:    "couchrelay",
	})
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}

	token, err := manager1.GenerateToken("player-1", relay.RoleController, "")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if claims, err := manager2.ValidateToken(token); err == nil || claims != nil {
		t.Errorf("ValidateToken() with wrong secret = %v, %v; want error", claims, err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	manager := newTestManager(t)

	claims := baseClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	_, err := manager.ValidateToken(sign(t, claims))
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("ValidateToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	manager := newTestManager(t)

	claims := baseClaims()
	claims.Issuer = "someone-else"

	if _, err := manager.ValidateToken(sign(t, claims)); err == nil {
		t.Error("ValidateToken() accepted a foreign issuer")
	}
}

func TestValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	manager := newTestManager(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, baseClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := manager.ValidateToken(token); err == nil {
		t.Error("ValidateToken() accepted alg=none")
	}
}

func TestIdentity_Rejections(t *testing.T) {
	manager := newTestManager(t)

	tests := []struct {
		name   string
		mutate func(*Claims)
	}{
		{"refresh token type", func(c *Claims) { c.TokenType = "refresh" }},
		{"missing token type", func(c *Claims) { c.TokenType = "" }},
		{"missing subject", func(c *Claims) { c.Subject = "" }},
		{"unknown role", func(c *Claims) { c.Role = "admin" }},
		{"nickname too long", func(c *Claims) { c.Nickname = "abcdefghijklmnopqrstuvwxyz" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := baseClaims()
			tt.mutate(claims)

			_, err := manager.Identity(sign(t, claims))
			if !errors.Is(err, relay.ErrUnauthorized) {
				t.Errorf("Identity() error = %v, want ErrUnauthorized", err)
			}
		})
	}

	if _, err := manager.Identity(""); !errors.Is(err, relay.ErrUnauthorized) {
		t.Errorf("Identity(\"\") error = %v, want ErrUnauthorized", err)
	}
}
