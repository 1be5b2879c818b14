package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Identity is the authenticated caller extracted from the bearer token.
type Identity struct {
	Subject string
	Email   string
}

// Label returns the identity string recorded on claims and checked against
// the admin registry.
func (id Identity) Label() string {
	if id.Email != "" {
		return id.Email
	}
	return id.Subject
}

type contextKey int

const identityKey contextKey = iota

func identityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// authenticate validates the Authorization bearer token (HS256 with the
// shared secret) and stashes the caller identity in the request context.
// CORS preflights pass through unauthenticated.
func (ar *apiRouter) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || raw == "" {
			_ = writeJSONResponse(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return ar.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			ar.logger.Info("Rejected bearer token", zap.Error(err))
			_ = writeJSONResponse(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}

		var id Identity
		if sub, err := claims.GetSubject(); err == nil {
			id.Subject = sub
		}
		if email, ok := claims["email"].(string); ok {
			id.Email = email
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}
