// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/relay"
)

// Subprotocol is the websocket subprotocol a browser client offers. A
// browser cannot set Authorization on an upgrade, so it may carry the token
// as the protocol entry that follows this one.
const Subprotocol = "couchrelay.v1"

type contextKey string

// IdentityContextKey holds the relay.Identity of an authenticated request.
const IdentityContextKey contextKey = "identity"

// ErrorWriter renders an authentication failure. The API passes its JSON
// error responder so every error body has the same shape.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, err error)

// Middleware authenticates HTTP requests with session tokens.
type Middleware struct {
	jwtManager *JWTManager
	onError    ErrorWriter
}

// NewMiddleware creates a new authentication middleware. A nil onError
// falls back to http.Error.
func NewMiddleware(jwtManager *JWTManager, onError ErrorWriter) *Middleware {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, status int, err error) {
			http.Error(w, err.Error(), status)
		}
	}
	return &Middleware{jwtManager: jwtManager, onError: onError}
}

// Authenticate verifies the request token and stores the identity in the
// request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := m.jwtManager.Identity(ExtractToken(r))
		if err != nil {
			logging.Debug().Err(err).Str("path", r.URL.Path).Msg("Token validation failed")
			m.onError(w, r, http.StatusUnauthorized, err)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole is middleware that enforces a specific role. It must run
// after Authenticate.
func (m *Middleware) RequireRole(role relay.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := IdentityFromContext(r.Context())
			if !ok {
				m.onError(w, r, http.StatusUnauthorized, fmt.Errorf("%w: missing identity", relay.ErrUnauthorized))
				return
			}
			if ident.Role != role {
				m.onError(w, r, http.StatusForbidden, fmt.Errorf("%w: role %s required", relay.ErrUnauthorized, role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext returns the identity stored by Authenticate.
func IdentityFromContext(ctx context.Context) (relay.Identity, bool) {
	ident, ok := ctx.Value(IdentityContextKey).(relay.Identity)
	return ident, ok
}

// ExtractToken finds the session token on a request. It checks, in order,
// the Authorization Bearer header, the "token" query parameter and the
// Sec-WebSocket-Protocol entry after Subprotocol. It returns "" when none
// is present.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return tokenFromSubprotocols(r.Header.Values("Sec-WebSocket-Protocol"))
}

func tokenFromSubprotocols(values []string) string {
	var protocols []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				protocols = append(protocols, p)
			}
		}
	}
	for i, p := range protocols {
		if p == Subprotocol && i+1 < len(protocols) {
			return protocols[i+1]
		}
	}
	return ""
}
