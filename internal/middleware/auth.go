package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tableside/api/internal/auth"
)

type contextKey string

const claimsKey contextKey = "staff_claims"

// Authenticate admits staff requests carrying a valid access token in the
// Authorization header. Guest routes are mounted outside it.
func Authenticate(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, msg := bearerToken(r)
			if msg != "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "staff token is invalid or expired"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// bearerToken returns the token, or a client-facing reason it is missing.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "staff token required"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", "authorization must be a Bearer token"
	}
	return strings.TrimSpace(token), ""
}

// RequireRole restricts a staff route to the listed roles, e.g. only the
// kitchen and managers move orders through preparation.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "staff login required"})
				return
			}
			if !HasRole(claims, roles...) {
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error": fmt.Sprintf("role %s may not perform this action", claims.Role),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasRole reports whether the staff member holds one of roles.
func HasRole(claims *auth.Claims, roles ...string) bool {
	for _, role := range roles {
		if claims.Role == role {
			return true
		}
	}
	return false
}

// ClaimsFromContext returns the authenticated staff member, or nil.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// WithClaims returns a context carrying claims, as Authenticate would set them.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
