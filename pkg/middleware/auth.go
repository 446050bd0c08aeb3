package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"helloev/pkg/logger"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const actorKey contextKey = "actor"

// Actor is the verified identity extracted from the session layer's token.
// The booking core trusts it; all ownership checks compare against it.
type Actor struct {
	ID   string
	Name string
	Role string
}

type sessionClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// ContextWithActor returns a context carrying the actor. Handler tests use
// it in place of the Authentication middleware.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Authentication verifies the HS256 bearer token issued by the session
// layer and stores the actor in the request context. Requests without a
// valid token are rejected; every route this service exposes mutates or
// reads per-actor state.
func Authentication(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				rejectUnauthenticated(w, log, r, "missing bearer token")
				return
			}

			tokenStr := strings.TrimPrefix(header, "Bearer ")
			claims := parseSessionClaims(tokenStr, secret)
			if claims == nil {
				rejectUnauthenticated(w, log, r, "invalid token")
				return
			}

			role := claims.Role
			if role == "" {
				role = RoleUser
			}

			ctx := context.WithValue(r.Context(), actorKey, Actor{
				ID:   claims.Subject,
				Name: claims.Name,
				Role: role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseSessionClaims(tokenStr, secret string) *sessionClaims {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil
	}
	return claims
}

func rejectUnauthenticated(w http.ResponseWriter, log *logger.Logger, r *http.Request, reason string) {
	log.Warn("Request rejected by authentication",
		"request_id", requestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"reason", reason,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Authentication required"}`))
}
