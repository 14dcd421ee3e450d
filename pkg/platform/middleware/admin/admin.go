// Package admin guards operator-only endpoints (approve, subscribe) with
// HS256 bearer tokens. Identity on regular submissions stays opaque; this
// is deliberately not a user authentication system.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	request "verifyd/pkg/platform/middleware/request"
)

// Claims are the operator token claims. Role must be "admin".
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAdmin validates the Authorization bearer token against the signing
// key and rejects anything without the admin role.
func RequireAdmin(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	key := []byte(signingKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "bearer token required")
				return
			}

			claims := &Claims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenUnverifiable
				}
				return key, nil
			})
			if err != nil || !parsed.Valid {
				requestID := request.GetRequestID(ctx)
				logger.WarnContext(ctx, "admin token rejected",
					"request_id", requestID,
					"expired", errors.Is(err, jwt.ErrTokenExpired),
				)
				writeUnauthorized(w, "invalid token")
				return
			}

			if claims.Role != "admin" {
				writeUnauthorized(w, "admin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Token mints an admin token. Used by operator tooling and tests.
func Token(signingKey string, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
