package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// statusSessionExpired distinguishes an expired session from a missing or
// forged one, matching the wallet front-end's convention.
const statusSessionExpired = 419

type contextKey int

const actorContextKey contextKey = 0

// authenticate guards /v2 routes with an HS256 bearer token. The token
// subject becomes the acting principal recorded on workflow events.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.JWTSecret == "" {
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), "anonymous")))
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token")
			return
		}

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, statusSessionExpired, "SESSION_EXPIRED", "bearer token expired")
				return
			}
			writeError(w, http.StatusForbidden, "FORBIDDEN", "invalid bearer token")
			return
		}

		actor, _ := parsed.Claims.GetSubject()
		if actor == "" {
			actor = "unknown"
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

func withActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// Actor returns the authenticated principal, or "unknown" when the request
// did not pass through the auth middleware.
func Actor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey).(string); ok {
		return actor
	}
	return "unknown"
}
