// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/rtaormina/waterwatch/internal/logging"
)

// Identity is the authenticated caller attached to the request context.
// Anonymous requests carry a nil identity.
type Identity struct {
	Username string
	Role     string
	UserID   int64
}

type contextKey string

const identityKey contextKey = "identity"

// ContextWithIdentity attaches an identity to ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller identity, or nil for anonymous
// requests.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// Middleware extracts and validates a bearer token when one is present.
// A nil manager (auth mode "none") passes every request through as
// anonymous. An invalid token is rejected; a missing token is not, so
// public routes and gated routes share the same chain.
func Middleware(manager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := manager.ValidateToken(token)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("Rejected bearer token")
				writeForbidden(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			id := &Identity{Username: claims.Username, Role: claims.Role, UserID: claims.UserID}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole gates a route to callers holding one of the given roles.
// Anonymous callers, including every caller when auth is disabled, and
// unlisted-role callers receive a generic 403 that does not disclose which
// roles would qualify.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(r)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil {
				writeForbidden(w, http.StatusForbidden, "Forbidden")
				return
			}
			if _, ok := allowed[strings.ToLower(id.Role)]; !ok {
				logging.Ctx(r.Context()).Debug().
					Str("username", id.Username).
					Str("role", id.Role).
					Msg("Role not permitted for route")
				writeForbidden(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeForbidden(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
