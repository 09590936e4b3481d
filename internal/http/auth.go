package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

type contextKey string

const actorKey contextKey = "actor"

// Actor is the authenticated caller extracted from the bearer token. The
// identity service issues the tokens; this layer only verifies them.
type Actor struct {
	ID   string
	Role string
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

// AuthMiddleware verifies the Authorization bearer token and puts the
// actor into the request context.
func AuthMiddleware(secret []byte, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "authorization header required", nil)
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		actor, err := validateToken(secret, tokenString)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GenerateToken signs a token for a user. Used by the CLI and tests; in
// production the identity service issues tokens with the shared secret.
func GenerateToken(secret []byte, userID, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString(secret)
}

func validateToken(secret []byte, tokenString string) (Actor, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Actor{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Actor{}, errors.New("invalid token")
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return Actor{}, errors.New("token missing subject")
	}
	return Actor{ID: sub, Role: role}, nil
}
