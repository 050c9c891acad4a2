// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/couchrelay/internal/config"
	"github.com/tomtom215/couchrelay/internal/relay"
	"github.com/tomtom215/couchrelay/internal/validation"
)

// TokenTypeAccess is the only token_type a relay handshake accepts.
const TokenTypeAccess = "access"

// Claims represents the identity carried by a session token. The subject
// (sub) is the stable player or device ID used to resume a seat.
type Claims struct {
	Role      string `json:"role" validate:"required,oneof=console controller spectator"`
	Nickname  string `json:"nickname,omitempty" validate:"omitempty,min=2,max=20,nickname"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token creation and validation
type JWTManager struct {
	secret  []byte
	timeout time.Duration
	issuer  string
}

// NewJWTManager creates a token manager from the security configuration.
//
// Tokens are signed with HS256. The secret must be non-empty; LoadWithKoanf
// already enforces the 32 character minimum.
//
// Example:
//
//	jwtManager, err := auth.NewJWTManager(&cfg.Security)
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
//	}
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}

	timeout := cfg.TokenTTL
	if timeout <= 0 {
		timeout = 12 * time.Hour
	}

	return &JWTManager{
		secret:  []byte(secret),
		timeout: timeout,
		issuer:  cfg.Issuer,
	}, nil
}

// GenerateToken signs an access token for subject acting as role.
//
// nickname is optional and shown to the other participants. Each token gets
// a random jti so two tokens for the same seat are still distinguishable in
// logs.
func (m *JWTManager) GenerateToken(subject string, role relay.Role, nickname string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role:      string(role),
		Nickname:  nickname,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if verr := validation.ValidateStruct(claims); verr != nil {
		return "", fmt.Errorf("invalid claims: %w", verr)
	}
	if subject == "" {
		return "", fmt.Errorf("invalid claims: subject is required")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a JWT token and extracts its claims.
//
// Signature, expiry and not-before are checked by jwt/v5. Any signing method
// other than HMAC is refused, which blocks "none" and RS/HS confusion.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, opts...)

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// Identity validates tokenString and converts it into a relay identity.
// Every failure wraps relay.ErrUnauthorized.
func (m *JWTManager) Identity(tokenString string) (relay.Identity, error) {
	if tokenString == "" {
		return relay.Identity{}, fmt.Errorf("%w: missing token", relay.ErrUnauthorized)
	}

	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return relay.Identity{}, fmt.Errorf("%w: %v", relay.ErrUnauthorized, err)
	}
	return claims.Identity()
}

// Identity converts already verified claims into a relay identity.
func (c *Claims) Identity() (relay.Identity, error) {
	if c.TokenType != TokenTypeAccess {
		return relay.Identity{}, fmt.Errorf("%w: token_type %q is not accepted", relay.ErrUnauthorized, c.TokenType)
	}
	if c.Subject == "" {
		return relay.Identity{}, fmt.Errorf("%w: token has no subject", relay.ErrUnauthorized)
	}
	if verr := validation.ValidateStruct(c); verr != nil {
		return relay.Identity{}, fmt.Errorf("%w: %v", relay.ErrUnauthorized, verr)
	}

	role, err := relay.ParseRole(c.Role)
	if err != nil {
		return relay.Identity{}, err
	}
	return relay.Identity{Subject: c.Subject, Role: role, Nickname: c.Nickname}, nil
}
