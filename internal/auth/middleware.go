package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey struct{}

// WithUserID returns a context carrying the authenticated player.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// BearerToken extracts the token from an Authorization header. Websocket
// upgrades cannot set headers, so a token query parameter is accepted when
// allowQuery is true.
func BearerToken(r *http.Request, allowQuery bool) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if allowQuery {
			if t := r.URL.Query().Get("token"); t != "" {
				return t, nil
			}
		}
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

// Authenticate validates the access token on a request and returns the
// player it belongs to.
func Authenticate(jwtMgr *JWTManager, r *http.Request, allowQuery bool) (string, error) {
	token, err := BearerToken(r, allowQuery)
	if err != nil {
		return "", err
	}
	claims, err := jwtMgr.ValidateAccessToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Middleware rejects requests without a valid access token and stores the
// player id in the request context.
func Middleware(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := Authenticate(jwtMgr, r, false)
			if err != nil {
				Unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// Unauthorized writes a 401 with a message matching err.
func Unauthorized(w http.ResponseWriter, err error) {
	msg := "invalid or expired token"
	switch {
	case errors.Is(err, ErrMissingToken):
		msg = "missing authorization token"
	case errors.Is(err, ErrWrongTokenUse):
		msg = "refresh token cannot be used here"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
