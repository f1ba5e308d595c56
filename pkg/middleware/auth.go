// Package middleware holds the HTTP middleware chain: identity resolution,
// request logging, panic recovery and rate limiting.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/voyplan/voyplan-api/internal/types"
)

type contextKey string

const authContextKey contextKey = "auth_context"

// WithAuth stores the resolved identity on the request context.
func WithAuth(ctx context.Context, authCtx types.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// AuthFrom returns the identity the Auth middleware resolved. Requests that
// never passed through it come back anonymous.
func AuthFrom(ctx context.Context) types.AuthContext {
	if authCtx, ok := ctx.Value(authContextKey).(types.AuthContext); ok {
		return authCtx
	}
	return types.AuthContext{}
}

// Auth resolves the caller identity. A Bearer token identifies a registered
// user; failing that, the X-Device-ID header identifies a guest device.
// Requests with neither proceed anonymously and the services decide where
// identity is required. A present but invalid token is rejected outright.
func Auth(jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := types.AuthContext{}
			switch {
			case bearerToken(r) != "":
				userID, err := parseUserID(bearerToken(r), jwtSecret)
				if err != nil {
					http.Error(w, "invalid or expired token", http.StatusUnauthorized)
					return
				}
				authCtx.UserID = &userID
			case strings.TrimSpace(r.Header.Get("X-Device-ID")) != "":
				deviceID := strings.TrimSpace(r.Header.Get("X-Device-ID"))
				authCtx.DeviceID = &deviceID
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func parseUserID(tokenString string, secret []byte) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return uuid.Nil, err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("subject is not a user id: %w", err)
	}
	return userID, nil
}
